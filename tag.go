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
	"fmt"
	"strings"
)

// Kind is the role a worker plays for its whole lifetime.
type Kind int

const (
	KindInvalid Kind = iota
	KindDeployment
	KindProxy
	KindSite
)

const deploymentPrefix = "deployment:"

// Tag identifies a worker slot.  It is decided once, at spawn time, and is
// carried to the child process in its environment.  The ID is only
// meaningful for KindDeployment.  Tags are comparable, and two workers with
// equal tags are replacements for each other.
type Tag struct {
	Kind Kind
	ID   string
}

var (
	ProxyTag = Tag{Kind: KindProxy}
	SiteTag  = Tag{Kind: KindSite}
)

func DeploymentTag(id string) Tag {
	return Tag{Kind: KindDeployment, ID: id}
}

// String returns the wire form: "deployment:<id>", "proxy" or "site".
func (t Tag) String() string {
	switch t.Kind {
	case KindDeployment:
		return deploymentPrefix + t.ID
	case KindProxy:
		return "proxy"
	case KindSite:
		return "site"
	}
	return fmt.Sprintf("invalid(%d)", int(t.Kind))
}

// ParseTag parses the wire form of a Tag.  "website" is accepted as an
// older spelling of "site".
func ParseTag(s string) (Tag, error) {
	switch {
	case s == "proxy":
		return ProxyTag, nil
	case s == "site", s == "website":
		return SiteTag, nil
	case strings.HasPrefix(s, deploymentPrefix):
		id := strings.TrimPrefix(s, deploymentPrefix)
		if id == "" {
			return Tag{}, fmt.Errorf("%w: %q", ErrBadTag, s)
		}
		return DeploymentTag(id), nil
	}
	return Tag{}, fmt.Errorf("%w: %q", ErrBadTag, s)
}
