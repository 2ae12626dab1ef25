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

// Package registry holds the read-only table of built deployments.  The
// table is produced by the build pipeline as a JSON artifact, and is loaded
// once per process.  There are no mutation operations; a changed artifact
// takes effect only after the whole process tree is restarted.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var (
	ErrRegistryUnavailable = errors.New("deployment registry unavailable")
)

// RenderMode selects how an application adapter serves a deployment.
type RenderMode int

const (
	StaticOnly RenderMode = iota
	ServerRendered
)

func (m RenderMode) String() string {
	switch m {
	case StaticOnly:
		return "static"
	case ServerRendered:
		return "ssr"
	}
	return fmt.Sprintf("RenderMode(%d)", int(m))
}

var subdomainRe = regexp.MustCompile(`^[a-z0-9-]+$`)

// Deployment describes one built example application.  The JSON names
// match the artifact written by the build pipeline.
type Deployment struct {
	ID          string `json:"dir"`
	RootPath    string `json:"path"`
	SSR         bool   `json:"ssr"`
	ServicePort int    `json:"servicePort"`
	Subdomain   string `json:"flyName"`
	URL         string `json:"flyUrl,omitempty"`
	EntryServer bool   `json:"entryServer,omitempty"`
	Start       string `json:"start,omitempty"`
}

// RenderMode returns the render mode derived from the ssr flag.
func (d Deployment) RenderMode() RenderMode {
	if d.SSR {
		return ServerRendered
	}
	return StaticOnly
}

// Registry is an immutable, ordered set of deployments.  It is safe for
// concurrent use without locking.
type Registry struct {
	path        string
	deployments []Deployment
	byID        map[string]int
	bySubdomain map[string]int
}

// Load reads the registry artifact at path.  Relative RootPath values are
// resolved against the directory containing the artifact.
func Load(path string) (*Registry, error) {
	b, e := os.ReadFile(path)
	if e != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, e)
	}
	var deps []Deployment
	if e := json.Unmarshal(b, &deps); e != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrRegistryUnavailable, path, e)
	}
	base := filepath.Dir(path)
	for i := range deps {
		if deps[i].RootPath != "" && !filepath.IsAbs(deps[i].RootPath) {
			deps[i].RootPath = filepath.Join(base, deps[i].RootPath)
		}
	}
	r, e := New(deps)
	if e != nil {
		return nil, e
	}
	r.path = path
	return r, nil
}

// New builds a registry from descriptors, enforcing that identifiers,
// subdomains and service ports are each unique.
func New(deps []Deployment) (*Registry, error) {
	r := &Registry{
		deployments: append([]Deployment{}, deps...),
		byID:        make(map[string]int, len(deps)),
		bySubdomain: make(map[string]int, len(deps)),
	}
	ports := make(map[int]string, len(deps))
	for i, d := range r.deployments {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has no dir", ErrRegistryUnavailable, i)
		}
		if !subdomainRe.MatchString(d.Subdomain) {
			return nil, fmt.Errorf("%w: %s: bad subdomain %q",
				ErrRegistryUnavailable, d.ID, d.Subdomain)
		}
		if d.ServicePort <= 0 || d.ServicePort > 65535 {
			return nil, fmt.Errorf("%w: %s: bad port %d",
				ErrRegistryUnavailable, d.ID, d.ServicePort)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate dir %q", ErrRegistryUnavailable, d.ID)
		}
		if _, dup := r.bySubdomain[d.Subdomain]; dup {
			return nil, fmt.Errorf("%w: duplicate subdomain %q",
				ErrRegistryUnavailable, d.Subdomain)
		}
		if other, dup := ports[d.ServicePort]; dup {
			return nil, fmt.Errorf("%w: port %d used by %s and %s",
				ErrRegistryUnavailable, d.ServicePort, other, d.ID)
		}
		r.byID[d.ID] = i
		r.bySubdomain[d.Subdomain] = i
		ports[d.ServicePort] = d.ID
	}
	return r, nil
}

// Path returns the artifact the registry was loaded from, if any.
func (r *Registry) Path() string {
	return r.path
}

// Len returns the number of deployments.
func (r *Registry) Len() int {
	return len(r.deployments)
}

// Deployments returns the descriptors in artifact order.  The returned
// slice is a copy.
func (r *Registry) Deployments() []Deployment {
	return append([]Deployment{}, r.deployments...)
}

func (r *Registry) FindBySubdomain(name string) (Deployment, bool) {
	if i, ok := r.bySubdomain[name]; ok {
		return r.deployments[i], true
	}
	return Deployment{}, false
}

func (r *Registry) FindByID(id string) (Deployment, bool) {
	if i, ok := r.byID[id]; ok {
		return r.deployments[i], true
	}
	return Deployment{}, false
}
