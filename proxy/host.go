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
	"net"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

var errBadHost = errors.New("malformed host")

// NormalizeHost strips any port from a Host header value, lowercases it,
// and converts internationalized names to their ASCII form.
func NormalizeHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if h, _, e := net.SplitHostPort(host); e == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", nil
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, e := idna.Lookup.ToASCII(host)
	if e != nil {
		return "", errBadHost
	}
	return strings.ToLower(ascii), nil
}

// Subdomain returns the leftmost label of host when host sits below a
// registrable domain.  If domain is non-empty and host is within it, domain
// is used as the base instead of the public suffix list, which allows
// names like alpha.localhost during development.  IP literals and bare
// domains have no subdomain, and yield "".
func Subdomain(host, domain string) (string, error) {
	host, e := NormalizeHost(host)
	if e != nil {
		return "", e
	}
	if host == "" || net.ParseIP(host) != nil {
		return "", nil
	}
	if domain != "" {
		if domain, e = NormalizeHost(domain); e != nil {
			return "", e
		}
		if host == domain {
			return "", nil
		}
		if rest, ok := strings.CutSuffix(host, "."+domain); ok {
			return firstLabel(rest), nil
		}
	}
	base, e := publicsuffix.EffectiveTLDPlusOne(host)
	if e != nil {
		// The host is itself a public suffix, or a single label.
		return "", nil
	}
	if host == base {
		return "", nil
	}
	return firstLabel(strings.TrimSuffix(host, "."+base)), nil
}

func firstLabel(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}
