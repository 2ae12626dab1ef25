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

// Package serve runs the HTTP listeners used by workers, and provides the
// access logging they share.
package serve

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Listen binds addr and serves h until ctx is done or the server fails.
// It never returns nil: a worker whose server stops has nothing left to
// do, and must not exit as though it succeeded.
func Listen(ctx context.Context, addr string, h http.Handler, logger zerolog.Logger) error {
	ln, e := net.Listen("tcp", addr)
	if e != nil {
		return e
	}
	return Serve(ctx, ln, h, logger)
}

// Serve is Listen for an existing listener.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	select {
	case e := <-errc:
		return e
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if e := srv.Shutdown(sctx); e != nil {
		logger.Warn().Err(e).Msg("shutdown")
	}
	if e := <-errc; e != nil && !errors.Is(e, http.ErrServerClosed) {
		return e
	}
	return ctx.Err()
}

// Recorder captures the status and size of a response.
type Recorder struct {
	http.ResponseWriter
	Status int
	Bytes  int
}

func NewRecorder(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w}
}

func (r *Recorder) WriteHeader(code int) {
	if r.Status == 0 {
		r.Status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *Recorder) Write(b []byte) (int, error) {
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	n, e := r.ResponseWriter.Write(b)
	r.Bytes += n
	return n, e
}

// Unwrap lets http.ResponseController reach Flush and friends.
func (r *Recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// StatusCode returns the status written so far, 200 if nothing was.
func (r *Recorder) StatusCode() int {
	if r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

// Event picks the log level for a finished request from its status.
func Event(logger zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	}
	return logger.Info()
}

// AccessLog logs one line per request.
func AccessLog(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewRecorder(w)
		next.ServeHTTP(rec, r)
		Event(logger, rec.StatusCode()).
			Str("method", r.Method).
			Str("host", r.Host).
			Str("path", r.URL.Path).
			Int("status", rec.StatusCode()).
			Dur("duration", time.Since(start)).
			Str("client_ip", r.RemoteAddr).
			Int("bytes", rec.Bytes).
			Msg("http_request")
	})
}
