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

// Package site is the landing site: a page listing every deployment, and a
// small JSON API describing them.
package site

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/subvisor/subvisor/app"
	"github.com/subvisor/subvisor/registry"
)

type Options struct {
	Links
	// Root holds the site's built assets, under dist/public.
	Root   string
	Logger zerolog.Logger
}

// Handler serves the landing site.  The registry never changes during a
// run, so every response body is computed once.
type Handler struct {
	r     *mux.Router
	opts  Options
	infos []DeploymentInfo
	byKey map[string]entity
	list  entity
}

type entity struct {
	body []byte
	etag string
}

func newEntity(v interface{}) (entity, error) {
	b, e := json.Marshal(v)
	if e != nil {
		return entity{}, e
	}
	sum := sha256.Sum256(b)
	return entity{body: b, etag: fmt.Sprintf(`"%x"`, sum[:12])}, nil
}

var page = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .Current}}examples/{{.Current.ID}}{{else}}examples{{end}}</title>
</head>
<body>
<nav>
<ul>
{{range .Deployments}}<li><a href="/?deployment={{.Subdomain}}"{{if eq .Subdomain $.Selected}} class="active"{{end}}>examples/{{.ID}}</a></li>
{{end}}</ul>
</nav>
<main id="content">
{{with .Current}}<h1>examples/{{.ID}}</h1>
<p><a href="{{.URL}}">{{.URL}}</a>{{if .SourceURL}} &middot; <a href="{{.SourceURL}}">source</a>{{end}}</p>
<iframe src="{{.URL}}" title="{{.ID}}" width="100%" height="800"></iframe>
{{else}}<p>No deployments.</p>
{{end}}</main>
</body>
</html>
`))

type pageData struct {
	Deployments []DeploymentInfo
	Current     *DeploymentInfo
	Selected    string
}

func (h *Handler) writeJson(w http.ResponseWriter, r *http.Request, ent entity) {
	w.Header().Set("Etag", ent.etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == ent.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", mimeJson)
	w.Write(ent.body)
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	data := pageData{Deployments: h.infos}
	sel := r.URL.Query().Get("deployment")
	if sel == "" && len(h.infos) > 0 {
		sel = h.infos[0].Subdomain
	}
	for i := range h.infos {
		if h.infos[i].Subdomain == sel {
			data.Current = &h.infos[i]
		}
	}
	if sel != "" && data.Current == nil {
		http.Error(w, "Deployment not found", http.StatusNotFound)
		return
	}
	data.Selected = sel
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if e := page.Execute(w, data); e != nil {
		h.opts.Logger.Error().Err(e).Msg("render")
	}
}

func (h *Handler) listDeployments(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, r, h.list)
}

func (h *Handler) getDeployment(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["subdomain"]
	if ent, ok := h.byKey[name]; ok {
		h.writeJson(w, r, ent)
		return
	}
	h.writeError(w, &Error{http.StatusNotFound, "Deployment not found"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	b, _ := json.Marshal(Health{Status: "ok", Deployments: len(h.infos)})
	w.Header().Set("Content-Type", mimeJson)
	w.Write(b)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(reg *registry.Registry, opts Options) (*Handler, error) {
	r := mux.NewRouter()
	h := &Handler{r: r, opts: opts, byKey: make(map[string]entity)}

	for _, d := range reg.Deployments() {
		info := opts.Info(d)
		h.infos = append(h.infos, info)
		ent, e := newEntity(info)
		if e != nil {
			return nil, e
		}
		h.byKey[d.Subdomain] = ent
	}
	list := h.infos
	if list == nil {
		list = []DeploymentInfo{}
	}
	var e error
	if h.list, e = newEntity(list); e != nil {
		return nil, e
	}

	r.HandleFunc("/", h.home).Methods("GET", "HEAD")
	r.HandleFunc("/healthz", h.health).Methods("GET")
	r.HandleFunc("/api/deployments", h.listDeployments).Methods("GET")
	r.HandleFunc("/api/deployments/{subdomain}", h.getDeployment).Methods("GET")
	if opts.Root != "" {
		dir := app.PublicDir(opts.Root)
		if st, e := os.Stat(dir); e == nil && st.IsDir() {
			r.PathPrefix("/").Handler(http.FileServer(http.Dir(dir))).Methods("GET", "HEAD")
		}
	}
	return h, nil
}
