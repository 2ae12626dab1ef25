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
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for routed requests.  Each Metrics has its
// own registry so that several routers (as in tests) do not collide.
type Metrics struct {
	reg      *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "subvisor",
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total routed HTTP requests.",
			},
			[]string{"target", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "subvisor",
				Subsystem: "proxy",
				Name:      "request_duration_seconds",
				Help:      "Routed HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"target", "method", "status"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "subvisor",
				Subsystem: "proxy",
				Name:      "backend_failures_total",
				Help:      "Requests that could not reach their backend.",
			},
			[]string{"target"},
		),
	}
	m.reg.MustRegister(m.requests, m.duration, m.failures)
	m.reg.MustRegister(collectors.NewGoCollector())
	return m
}

func (m *Metrics) observe(target, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requests.WithLabelValues(target, method, code).Inc()
	m.duration.WithLabelValues(target, method, code).Observe(d.Seconds())
}

func (m *Metrics) backendFailed(target string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(target).Inc()
}

// Handler exposes the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
