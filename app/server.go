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

// Package app serves one built deployment.  Most deployments are static
// bundles with optional history-API navigation; those that ship their own
// entry server are started as a command instead.
package app

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/subvisor/subvisor/registry"
)

const (
	RenderModeHeader = "X-Render-Mode"
	indexFile        = "index.html"
)

// PublicDir is where the build pipeline leaves a deployment's assets.
func PublicDir(root string) string {
	return filepath.Join(root, "dist", "public")
}

// Server is the http.Handler for a deployment without its own entry server.
type Server struct {
	mode  registry.RenderMode
	fsys  fs.FS
	files http.Handler
}

func New(d registry.Deployment) *Server {
	return NewFS(os.DirFS(PublicDir(d.RootPath)), d.RenderMode())
}

// NewFS serves fsys in the given mode.
func NewFS(fsys fs.FS, mode registry.RenderMode) *Server {
	return &Server{
		mode:  mode,
		fsys:  fsys,
		files: http.FileServerFS(fsys),
	}
}

func (s *Server) Mode() registry.RenderMode {
	return s.mode
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.mode != registry.ServerRendered {
		s.files.ServeHTTP(w, r)
		return
	}
	w.Header().Set(RenderModeHeader, s.mode.String())
	if s.navigation(r) {
		http.ServeFileFS(w, r, s.fsys, indexFile)
		return
	}
	s.files.ServeHTTP(w, r)
}

// navigation reports whether r is a page load for a client side route,
// i.e. an HTML GET for a path that has no file behind it.
func (s *Server) navigation(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		return false
	}
	if _, e := fs.Stat(s.fsys, name); e == nil {
		return false
	}
	if path.Ext(name) != "" && !strings.Contains(r.Header.Get("Accept"), "text/html") {
		return false
	}
	_, e := fs.Stat(s.fsys, indexFile)
	return e == nil
}
