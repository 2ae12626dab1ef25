// Copyright 2024 The Subvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package subvisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/subvisor/subvisor/app"
	"github.com/subvisor/subvisor/proxy"
	"github.com/subvisor/subvisor/registry"
	"github.com/subvisor/subvisor/serve"
	"github.com/subvisor/subvisor/site"
)

// Worker is the runtime of one worker process.  A worker serves exactly
// one role until it fails, its context ends, or its self-termination
// timer fires.  It never returns nil from Run; the Supervisor treats a
// clean exit as fatal.
type Worker struct {
	Tag      Tag
	Config   Config
	Registry *registry.Registry
	Logger   zerolog.Logger

	// Exit is called by the self-termination timer.  Nil means os.Exit.
	Exit func(int)

	// Lifetime overrides the jittered self-termination delay when positive.
	Lifetime time.Duration
}

// StopGrace is how long the role has to shut down after the
// self-termination timer fires.
const StopGrace = 5 * time.Second

// Run arms the self-termination timer and then serves the role.  When the
// timer fires the role is stopped, and the worker exits with status 1 once
// it has returned or StopGrace has passed.
func (w *Worker) Run(ctx context.Context) error {
	exit := w.Exit
	if exit == nil {
		exit = os.Exit
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})

	profile := w.Config.RuntimeProfile()
	fire := func(code int) {
		w.Logger.Info().Str("profile", profile.String()).
			Msg("self-termination timer fired")
		cancel()
		select {
		case <-done:
		case <-time.After(StopGrace):
			w.Logger.Warn().Dur("grace", StopGrace).Msg("role did not stop")
		}
		exit(code)
	}
	d := w.Lifetime
	if d > 0 {
		time.AfterFunc(d, func() { fire(1) })
	} else {
		d = ArmSelfTermination(profile, fire)
	}
	w.Logger.Info().Dur("lifetime", d).Str("profile", profile.String()).
		Msg("worker starting")

	e := w.Dispatch(ctx)
	close(done)
	return e
}

// Dispatch serves the worker's role.
func (w *Worker) Dispatch(ctx context.Context) error {
	switch w.Tag.Kind {
	case KindDeployment:
		return w.runDeployment(ctx)
	case KindProxy:
		return w.runProxy(ctx)
	case KindSite:
		return w.runSite(ctx)
	}
	return fmt.Errorf("%w: %q", ErrUnknownRole, w.Tag.String())
}

func (w *Worker) runDeployment(ctx context.Context) error {
	d, ok := w.Registry.FindByID(w.Tag.ID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDeployment, w.Tag.ID)
	}
	logger := w.Logger.With().Str("subdomain", d.Subdomain).Logger()
	if d.EntryServer {
		return app.RunCommand(ctx, app.Command(ctx, d), logger)
	}
	logger.Info().Str("mode", d.RenderMode().String()).
		Str("root", app.PublicDir(d.RootPath)).Msg("serving deployment")
	h := serve.AccessLog(logger, app.New(d))
	return serve.Listen(ctx, DeploymentAddr(d.ServicePort), h, logger)
}

func (w *Worker) runProxy(ctx context.Context) error {
	metrics := proxy.NewMetrics()
	rt := proxy.NewRouter(w.Registry, proxy.Options{
		Domain:    w.Config.Domain,
		SiteAlias: w.Config.SiteAlias,
		SitePort:  w.Config.SitePort,
		Logger:    w.Logger,
		Metrics:   metrics,
	})
	if w.Config.MetricsAddr == "" {
		return serve.Listen(ctx, w.Config.ProxyAddr(), rt, w.Logger)
	}

	mr := mux.NewRouter()
	mr.Handle("/metrics", metrics.Handler()).Methods("GET")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve.Listen(gctx, w.Config.ProxyAddr(), rt, w.Logger)
	})
	g.Go(func() error {
		return serve.Listen(gctx, w.Config.MetricsAddr, mr,
			w.Logger.With().Str("listener", "metrics").Logger())
	})
	return g.Wait()
}

func (w *Worker) runSite(ctx context.Context) error {
	h, e := site.NewHandler(w.Registry, site.Options{
		Links: site.Links{
			Domain:     w.Config.Domain,
			Production: w.Config.RuntimeProfile() == Production,
			SourceURL:  w.Config.SourceURL,
		},
		Root:   w.Config.SiteRoot,
		Logger: w.Logger,
	})
	if e != nil {
		return e
	}
	return serve.Listen(ctx, w.Config.SiteAddr(), serve.AccessLog(w.Logger, h), w.Logger)
}
