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

package proxy

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/subvisor/subvisor/registry"
)

type seen struct {
	name   string
	method string
	host   string
	path   string
	body   string
	header http.Header
}

func backend(name string, out chan<- seen) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		out <- seen{
			name:   name,
			method: r.Method,
			host:   r.Host,
			path:   r.URL.RequestURI(),
			body:   string(b),
			header: r.Header.Clone(),
		}
		w.Header().Set("X-Backend", name)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "from "+name)
	}))
}

func portOf(s *httptest.Server) int {
	u, _ := url.Parse(s.URL)
	p, _ := strconv.Atoi(u.Port())
	return p
}

func freePort() int {
	ln, e := net.Listen("tcp", "127.0.0.1:0")
	if e != nil {
		panic(e)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRouter(t *testing.T) {
	Convey("Given alpha and beta deployments and a site", t, func() {
		hits := make(chan seen, 8)
		alpha := backend("alpha", hits)
		beta := backend("beta", hits)
		site := backend("site", hits)
		Reset(func() {
			alpha.Close()
			beta.Close()
			site.Close()
		})

		reg, e := registry.New([]registry.Deployment{
			{ID: "a", Subdomain: "alpha", ServicePort: portOf(alpha)},
			{ID: "b", Subdomain: "beta", ServicePort: portOf(beta)},
		})
		So(e, ShouldBeNil)
		metrics := NewMetrics()
		rt := NewRouter(reg, Options{
			SitePort: portOf(site),
			Logger:   zerolog.Nop(),
			Metrics:  metrics,
		})
		front := httptest.NewServer(rt)
		Reset(front.Close)

		do := func(method, host, path, body string) *http.Response {
			req, e := http.NewRequest(method, front.URL+path, strings.NewReader(body))
			So(e, ShouldBeNil)
			req.Host = host
			req.Header.Set("X-Custom", "kept")
			res, e := http.DefaultClient.Do(req)
			So(e, ShouldBeNil)
			return res
		}

		Convey("alpha goes to the alpha backend", func() {
			res := do("POST", "alpha.example.com", "/x/y?z=1", "payload")
			defer res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusCreated)
			So(res.Header.Get("X-Backend"), ShouldEqual, "alpha")
			b, _ := io.ReadAll(res.Body)
			So(string(b), ShouldEqual, "from alpha")

			got := <-hits
			So(got.name, ShouldEqual, "alpha")
			So(got.method, ShouldEqual, "POST")
			So(got.host, ShouldEqual, "alpha.example.com")
			So(got.path, ShouldEqual, "/x/y?z=1")
			So(got.body, ShouldEqual, "payload")
			So(got.header.Get("X-Custom"), ShouldEqual, "kept")
			So(got.header.Get("X-Forwarded-Host"), ShouldEqual, "alpha.example.com")
			So(got.header.Get("X-Forwarded-For"), ShouldNotBeEmpty)
			So(got.header.Get(RequestIDHeader), ShouldNotBeEmpty)
			So(res.Header.Get(RequestIDHeader), ShouldEqual, got.header.Get(RequestIDHeader))
		})

		Convey("beta goes to the beta backend", func() {
			res := do("GET", "beta.example.com:3000", "/", "")
			res.Body.Close()
			So(res.Header.Get("X-Backend"), ShouldEqual, "beta")
			So((<-hits).name, ShouldEqual, "beta")
		})

		Convey("An existing request id is kept", func() {
			req, _ := http.NewRequest("GET", front.URL+"/", nil)
			req.Host = "alpha.example.com"
			req.Header.Set(RequestIDHeader, "abc-123")
			res, e := http.DefaultClient.Do(req)
			So(e, ShouldBeNil)
			res.Body.Close()
			So((<-hits).header.Get(RequestIDHeader), ShouldEqual, "abc-123")
		})

		Convey("An edge's forwarding headers reach the backend", func() {
			req, _ := http.NewRequest("GET", front.URL+"/", nil)
			req.Host = "alpha.example.com"
			req.Header.Set("X-Forwarded-For", "203.0.113.7")
			req.Header.Set("X-Forwarded-Proto", "https")
			req.Header.Set("X-Forwarded-Host", "alpha.waku.land")
			res, e := http.DefaultClient.Do(req)
			So(e, ShouldBeNil)
			res.Body.Close()

			got := <-hits
			So(got.header.Get("X-Forwarded-For"), ShouldEqual, "203.0.113.7, 127.0.0.1")
			So(got.header.Get("X-Forwarded-Proto"), ShouldEqual, "https")
			So(got.header.Get("X-Forwarded-Host"), ShouldEqual, "alpha.waku.land")
		})

		Convey("Without an edge the router records the client itself", func() {
			res := do("GET", "alpha.example.com", "/", "")
			res.Body.Close()
			got := <-hits
			So(got.header.Get("X-Forwarded-For"), ShouldEqual, "127.0.0.1")
			So(got.header.Get("X-Forwarded-Proto"), ShouldEqual, "http")
		})

		Convey("gamma is not found", func() {
			res := do("GET", "gamma.example.com", "/", "")
			defer res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNotFound)
			So(res.Header.Get(RequestIDHeader), ShouldNotBeEmpty)
			b, _ := io.ReadAll(res.Body)
			So(string(b), ShouldEqual, NotFoundBody)
			So(len(hits), ShouldEqual, 0)

			_, e := rt.Resolve("gamma.example.com")
			So(errors.Is(e, ErrUnroutableHost), ShouldBeTrue)
		})

		Convey("www and the bare domain go to the site", func() {
			for _, host := range []string{"www.example.com", "example.com"} {
				res := do("GET", host, "/", "")
				res.Body.Close()
				So(res.Header.Get("X-Backend"), ShouldEqual, "site")
				So((<-hits).name, ShouldEqual, "site")
			}
		})

		Convey("Resolve agrees with the registry", func() {
			for _, d := range reg.Deployments() {
				r, e := rt.Resolve(d.Subdomain + ".example.com")
				So(e, ShouldBeNil)
				So(r.Kind, ShouldEqual, RouteDeployment)
				So(r.Port, ShouldEqual, d.ServicePort)
				So(r.Deployment, ShouldResemble, d)
			}
			r, e := rt.Resolve("example.com")
			So(e, ShouldBeNil)
			So(r.Kind, ShouldEqual, RouteSite)
			So(r.Port, ShouldEqual, portOf(site))
		})

		Convey("Requests are counted", func() {
			res := do("GET", "alpha.example.com", "/", "")
			res.Body.Close()
			<-hits
			rec := httptest.NewRecorder()
			metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
			So(rec.Body.String(), ShouldContainSubstring,
				`subvisor_proxy_requests_total{method="GET",status="201",target="alpha"} 1`)
		})
	})

	Convey("A backend that is down yields 502", t, func() {
		reg, e := registry.New([]registry.Deployment{
			{ID: "a", Subdomain: "alpha", ServicePort: freePort()},
		})
		So(e, ShouldBeNil)
		metrics := NewMetrics()
		rt := NewRouter(reg, Options{Logger: zerolog.Nop(), Metrics: metrics})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "http://alpha.example.com/", nil)
		rt.ServeHTTP(rec, req)
		So(rec.Code, ShouldEqual, http.StatusBadGateway)
		So(rec.Header().Get(RequestIDHeader), ShouldNotBeEmpty)

		// The router survives and keeps answering.
		rec = httptest.NewRecorder()
		rt.ServeHTTP(rec, httptest.NewRequest("GET", "http://nope.example.com/", nil))
		So(rec.Code, ShouldEqual, http.StatusNotFound)

		rec = httptest.NewRecorder()
		metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		So(rec.Body.String(), ShouldContainSubstring,
			`subvisor_proxy_backend_failures_total{target="alpha"} 1`)
	})
}

func TestRouterRequestID(t *testing.T) {
	Convey("A backend's own request id is replaced, not duplicated", t, func() {
		be := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(RequestIDHeader, "from-backend")
			io.WriteString(w, "ok")
		}))
		Reset(be.Close)
		reg, e := registry.New([]registry.Deployment{
			{ID: "a", Subdomain: "alpha", ServicePort: portOf(be)},
		})
		So(e, ShouldBeNil)
		rt := NewRouter(reg, Options{Logger: zerolog.Nop()})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "http://alpha.example.com/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rt.ServeHTTP(rec, req)
		So(rec.Code, ShouldEqual, http.StatusOK)
		So(rec.Header().Values(RequestIDHeader), ShouldResemble, []string{"abc-123"})
	})
}
