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

// Command subvisord runs the subvisor.  Started without a worker tag in its
// environment it is the Supervisor, and re-executes itself once per worker.
// Started with SUBVISOR_TAG set it is that worker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/subvisor/subvisor"
	"github.com/subvisor/subvisor/registry"
)

var cfgFile string = ""
var regFile string = ""
var profile string = ""

func main() {
	os.Exit(run())
}

func run() int {
	flag.StringVar(&cfgFile, "c", cfgFile, "configuration file (TOML)")
	flag.StringVar(&regFile, "r", regFile, "deployment registry (overrides config)")
	flag.StringVar(&profile, "p", profile, "runtime profile (overrides config)")
	flag.Parse()

	role := os.Getenv(subvisor.EnvTag)
	if role == "" {
		role = "primary"
	}

	cfg, e := subvisor.LoadConfig(cfgFile)
	if e != nil {
		fmt.Fprintf(os.Stderr, "subvisord: %v\n", e)
		return 1
	}
	if regFile != "" {
		cfg.Registry = regFile
	}
	if profile != "" {
		cfg.Profile = profile
	}
	// The Supervisor hands its profile to every worker.
	if p := os.Getenv(subvisor.EnvProfile); p != "" && role != "primary" {
		cfg.Profile = p
	}
	logger := subvisor.NewLogger(os.Stderr, cfg.LogLevel, role)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if subvisor.IsPrimary() {
		return runPrimary(ctx, cfg, logger)
	}
	return runWorker(ctx, role, cfg, logger)
}

func runPrimary(ctx context.Context, cfg subvisor.Config, logger zerolog.Logger) int {
	reg, e := registry.Load(cfg.Registry)
	if e != nil {
		logger.Error().Err(e).Str("registry", cfg.Registry).Msg("cannot start")
		return 1
	}
	l, e := subvisor.NewExecLauncher(cfg.RuntimeProfile(), logger)
	if e != nil {
		logger.Error().Err(e).Msg("cannot find own executable")
		return 1
	}
	l.Lines = cfg.LogLines

	logger.Info().
		Int("deployments", reg.Len()).
		Str("profile", cfg.RuntimeProfile().String()).
		Str("proxy", cfg.ProxyAddr()).
		Msg("supervisor starting")

	s := subvisor.NewSupervisor(reg, l, logger)
	e = s.Run(ctx)
	for _, sl := range s.Slots() {
		logger.Info().
			Str("worker", sl.Tag.String()).
			Str("state", sl.State.String()).
			Int("starts", sl.Starts).
			Str("status", sl.Status).
			Msg("final")
	}
	if errors.Is(e, context.Canceled) {
		logger.Info().Msg("supervisor stopped by signal")
	} else {
		logger.Error().Err(e).Msg("supervisor stopped")
	}
	// The Supervisor never ends successfully.
	return 1
}

func runWorker(ctx context.Context, role string, cfg subvisor.Config, logger zerolog.Logger) int {
	tag, e := subvisor.ParseTag(role)
	if e != nil {
		logger.Error().Err(e).Msg("bad worker tag")
		return 1
	}
	reg, e := registry.Load(cfg.Registry)
	if e != nil {
		logger.Error().Err(e).Msg("cannot load registry")
		return 1
	}
	w := &subvisor.Worker{
		Tag:      tag,
		Config:   cfg,
		Registry: reg,
		Logger:   logger,
	}
	if e := w.Run(ctx); e != nil {
		logger.Error().Err(e).Msg("worker stopped")
		return 1
	}
	return 0
}
