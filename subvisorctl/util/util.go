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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/subvisor/subvisor/registry"
)

// Target is one listener that subvisor should have up.
type Target struct {
	Name string // worker tag
	Kind string
	URL  string
	// Deployment is set for deployment targets.
	Deployment *registry.Deployment
}

// Probe is the result of checking a Target.
type Probe struct {
	Target
	Up      bool
	Code    int
	Latency time.Duration
	Err     error
	Time    time.Time
}

func loopbackURL(port int, path string) string {
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + path
}

// Targets lists every listener: each deployment, then the proxy and site.
func Targets(reg *registry.Registry, proxyPort, sitePort int) []Target {
	var rv []Target
	for _, d := range reg.Deployments() {
		rv = append(rv, Target{
			Name:       "deployment:" + d.ID,
			Kind:       "deployment",
			URL:        loopbackURL(d.ServicePort, "/"),
			Deployment: &d,
		})
	}
	rv = append(rv,
		Target{Name: "proxy", Kind: "proxy", URL: loopbackURL(proxyPort, "/")},
		Target{Name: "site", Kind: "site", URL: loopbackURL(sitePort, "/healthz")},
	)
	return rv
}

// Check probes one target.  Any HTTP answer below 500 counts as up.
func Check(ctx context.Context, client *http.Client, t Target) Probe {
	p := Probe{Target: t, Time: time.Now()}
	req, e := http.NewRequestWithContext(ctx, "GET", t.URL, nil)
	if e != nil {
		p.Err = e
		return p
	}
	start := time.Now()
	res, e := client.Do(req)
	p.Latency = time.Since(start)
	if e != nil {
		p.Err = e
		return p
	}
	res.Body.Close()
	p.Code = res.StatusCode
	p.Up = res.StatusCode < 500
	if !p.Up {
		p.Err = fmt.Errorf("status %s", res.Status)
	}
	return p
}

// CheckAll probes all targets concurrently, and returns sorted results.
func CheckAll(ctx context.Context, client *http.Client, targets []Target) []Probe {
	rv := make([]Probe, len(targets))
	var wg sync.WaitGroup
	for i := range targets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rv[i] = Check(ctx, client, targets[i])
		}(i)
	}
	wg.Wait()
	SortProbes(rv)
	return rv
}

func Status(p *Probe) string {
	if p.Up {
		return "up"
	}
	return "down"
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

type sorted []Probe

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	if a.Up != b.Up {
		// put down items at front
		return !a.Up
	}
	return a.Name < b.Name
}

func SortProbes(items []Probe) {
	sort.Sort(sorted(items))
}
