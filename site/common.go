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

package site

import (
	"fmt"
	"strconv"

	"github.com/subvisor/subvisor/registry"
)

const (
	mimeJson = "application/json; charset=UTF-8"
)

// DeploymentInfo is the public view of a deployment.
type DeploymentInfo struct {
	ID         string `json:"id"`
	Subdomain  string `json:"subdomain"`
	Port       int    `json:"port"`
	RenderMode string `json:"renderMode"`
	URL        string `json:"url"`
	SourceURL  string `json:"sourceUrl,omitempty"`
}

type Health struct {
	Status      string `json:"status"`
	Deployments int    `json:"deployments"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Links decides the URLs shown for a deployment.  In production a
// deployment lives at its own subdomain; in development it is reached
// directly on its loopback port.
type Links struct {
	Domain     string
	Production bool
	// SourceURL is a format string taking the deployment id.
	SourceURL string
}

func (l Links) URL(d registry.Deployment) string {
	if l.Production {
		if d.URL != "" {
			return d.URL
		}
		if l.Domain != "" {
			return "https://" + d.Subdomain + "." + l.Domain
		}
	}
	return "http://127.0.0.1:" + strconv.Itoa(d.ServicePort)
}

func (l Links) Source(d registry.Deployment) string {
	if l.SourceURL == "" {
		return ""
	}
	return fmt.Sprintf(l.SourceURL, d.ID)
}

func (l Links) Info(d registry.Deployment) DeploymentInfo {
	return DeploymentInfo{
		ID:         d.ID,
		Subdomain:  d.Subdomain,
		Port:       d.ServicePort,
		RenderMode: d.RenderMode().String(),
		URL:        l.URL(d),
		SourceURL:  l.Source(d),
	}
}
