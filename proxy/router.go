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

// Package proxy implements the public entry point: a reverse proxy that
// picks a loopback backend from the leftmost label of the Host header.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/subvisor/subvisor/registry"
	"github.com/subvisor/subvisor/serve"
)

var (
	ErrUnroutableHost     = errors.New("no deployment for host")
	ErrBackendUnreachable = errors.New("backend unreachable")
)

const (
	DefaultSiteAlias = "www"
	DefaultSitePort  = 5000
	RequestIDHeader  = "X-Request-Id"

	// NotFoundBody is the plain text returned for unknown subdomains.
	NotFoundBody = "Nothing found for this subdomain."

	loopback = "127.0.0.1"
)

type RouteKind int

const (
	RouteSite RouteKind = iota
	RouteDeployment
)

func (k RouteKind) String() string {
	if k == RouteDeployment {
		return "deployment"
	}
	return "site"
}

// Route is where a request goes.
type Route struct {
	Kind       RouteKind
	Subdomain  string
	Port       int
	Deployment registry.Deployment
}

// Target is a short label for logs and metrics.
func (r Route) Target() string {
	if r.Kind == RouteDeployment {
		return r.Subdomain
	}
	return "site"
}

// URL returns the loopback URL of the backend.
func (r Route) URL() *url.URL {
	return &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(loopback, strconv.Itoa(r.Port)),
	}
}

type Options struct {
	// Domain, if set, is the base domain below which subdomains are taken.
	// Otherwise the public suffix list decides.
	Domain    string
	SiteAlias string
	SitePort  int
	Logger    zerolog.Logger
	Metrics   *Metrics
	Transport http.RoundTripper
}

// Router is an http.Handler.  It keeps no per-request state beyond the
// registry lookup, and is safe for concurrent use.
type Router struct {
	reg      *registry.Registry
	domain   string
	alias    string
	sitePort int
	logger   zerolog.Logger
	metrics  *Metrics
	proxy    *httputil.ReverseProxy
}

type routeKey struct{}

type routed struct {
	route Route
	id    string
}

func NewRouter(reg *registry.Registry, opts Options) *Router {
	rt := &Router{
		reg:      reg,
		domain:   opts.Domain,
		alias:    opts.SiteAlias,
		sitePort: opts.SitePort,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if rt.alias == "" {
		rt.alias = DefaultSiteAlias
	}
	if rt.sitePort == 0 {
		rt.sitePort = DefaultSitePort
	}
	rt.proxy = &httputil.ReverseProxy{
		Rewrite:        rt.rewrite,
		Transport:      opts.Transport,
		ModifyResponse: rt.modifyResponse,
		ErrorHandler:   rt.backendError,
		FlushInterval:  -1,
	}
	return rt
}

// Resolve decides where a request for host goes.  Unknown subdomains
// yield ErrUnroutableHost.
func (rt *Router) Resolve(host string) (Route, error) {
	sub, e := Subdomain(host, rt.domain)
	if e != nil {
		return Route{}, fmt.Errorf("%w: %q: %v", ErrUnroutableHost, host, e)
	}
	if sub == "" || sub == rt.alias {
		return Route{Kind: RouteSite, Subdomain: sub, Port: rt.sitePort}, nil
	}
	d, ok := rt.reg.FindBySubdomain(sub)
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnroutableHost, sub)
	}
	return Route{
		Kind:       RouteDeployment,
		Subdomain:  sub,
		Port:       d.ServicePort,
		Deployment: d,
	}, nil
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := serve.NewRecorder(w)

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	route, e := rt.Resolve(r.Host)
	target := "none"
	if e != nil {
		rec.Header().Set(RequestIDHeader, id)
		rec.Header().Set("Content-Type", "text/plain; charset=utf-8")
		rec.Header().Set("X-Content-Type-Options", "nosniff")
		rec.WriteHeader(http.StatusNotFound)
		io.WriteString(rec, NotFoundBody)
	} else {
		target = route.Target()
		ctx := context.WithValue(r.Context(), routeKey{}, routed{route: route, id: id})
		rt.proxy.ServeHTTP(rec, r.WithContext(ctx))
	}

	elapsed := time.Since(start)
	rt.metrics.observe(target, r.Method, rec.StatusCode(), elapsed)
	ev := serve.Event(rt.logger, rec.StatusCode()).
		Str("request_id", id).
		Str("method", r.Method).
		Str("host", r.Host).
		Str("path", r.URL.Path).
		Str("target", target).
		Int("status", rec.StatusCode()).
		Dur("duration", elapsed).
		Str("client_ip", r.RemoteAddr)
	if e != nil {
		ev = ev.Err(e)
	} else {
		ev = ev.Int("port", route.Port)
	}
	ev.Msg("http_request")
}

func (rt *Router) rewrite(pr *httputil.ProxyRequest) {
	rd := pr.In.Context().Value(routeKey{}).(routed)
	pr.SetURL(rd.route.URL())
	// Backends see the public host, not the loopback address.
	pr.Out.Host = pr.In.Host
	// An edge in front of us has already recorded the client and the
	// scheme; keep them.  SetXForwarded appends to X-Forwarded-For.
	if xff, ok := pr.In.Header["X-Forwarded-For"]; ok {
		pr.Out.Header["X-Forwarded-For"] = append([]string(nil), xff...)
	}
	pr.SetXForwarded()
	for _, h := range []string{"X-Forwarded-Host", "X-Forwarded-Proto"} {
		if v := pr.In.Header.Get(h); v != "" {
			pr.Out.Header.Set(h, v)
		}
	}
	pr.Out.Header.Set(RequestIDHeader, rd.id)
}

// modifyResponse stamps the request id on the response, replacing any
// the backend sent.
func (rt *Router) modifyResponse(res *http.Response) error {
	res.Header.Set(RequestIDHeader, res.Request.Header.Get(RequestIDHeader))
	return nil
}

func (rt *Router) backendError(w http.ResponseWriter, r *http.Request, err error) {
	target := "none"
	if rd, ok := r.Context().Value(routeKey{}).(routed); ok {
		target = rd.route.Target()
		w.Header().Set(RequestIDHeader, rd.id)
	}
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody is listening for a response.
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	rt.metrics.backendFailed(target)
	rt.logger.Warn().
		Err(fmt.Errorf("%w: %v", ErrBackendUnreachable, err)).
		Str("target", target).
		Msg("proxy")
	w.WriteHeader(http.StatusBadGateway)
}
