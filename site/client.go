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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// Client reads the landing site's JSON API.  Responses are cached by Etag,
// so repeated calls against an unchanged site cost a 304 each.
type Client struct {
	base   string
	client *http.Client

	lock  sync.Mutex
	etag  string
	cache []DeploymentInfo
	byKey map[string]cached
}

type cached struct {
	etag string
	info DeploymentInfo
}

func (c *Client) url(name string) string {
	if name == "" {
		return c.base + "/api/deployments"
	}
	return c.base + "/api/deployments/" + url.PathEscape(name)
}

// Deployments returns every deployment the site knows.
func (c *Client) Deployments(ctx context.Context) ([]DeploymentInfo, error) {
	c.lock.Lock()
	otag, old := c.etag, c.cache
	c.lock.Unlock()

	var v []DeploymentInfo
	etag, changed, e := c.get(ctx, c.url(""), otag, &v)
	if e != nil {
		return nil, e
	}
	if !changed {
		return old, nil
	}
	c.lock.Lock()
	c.etag, c.cache = etag, v
	c.lock.Unlock()
	return v, nil
}

// Deployment returns one deployment by subdomain.
func (c *Client) Deployment(ctx context.Context, subdomain string) (DeploymentInfo, error) {
	c.lock.Lock()
	old, ok := c.byKey[subdomain]
	c.lock.Unlock()

	otag := ""
	if ok {
		otag = old.etag
	}
	var v DeploymentInfo
	etag, changed, e := c.get(ctx, c.url(subdomain), otag, &v)
	if e != nil {
		c.lock.Lock()
		delete(c.byKey, subdomain)
		c.lock.Unlock()
		return DeploymentInfo{}, e
	}
	if !changed {
		return old.info, nil
	}
	c.lock.Lock()
	c.byKey[subdomain] = cached{etag: etag, info: v}
	c.lock.Unlock()
	return v, nil
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var v Health
	_, _, e := c.get(ctx, c.base+"/healthz", "", &v)
	return v, e
}

// get issues a GET, conditional on etag when it is not empty.  It returns
// the new Etag, and false if the value has not changed.
func (c *Client) get(ctx context.Context, u string, etag string, v interface{}) (string, bool, error) {
	req, e := http.NewRequestWithContext(ctx, "GET", u, nil)
	if e != nil {
		return "", false, e
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return "", false, e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", false, nil
	}
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return "", false, e
	}
	if res.StatusCode != http.StatusOK {
		ae := &Error{}
		if json.Unmarshal(body, ae) != nil || ae.Message == "" {
			ae.Message = res.Status
		}
		ae.Code = res.StatusCode
		return "", false, ae
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", false, e
	}
	return res.Header.Get("Etag"), true, nil
}

// NewClient returns a Client for the site at baseURI.  The transport may
// be nil to use a default one.
func NewClient(t http.RoundTripper, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	return &Client{
		base:   baseURI,
		client: &http.Client{Transport: t},
		byKey:  make(map[string]cached),
	}
}
