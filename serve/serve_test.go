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

package serve

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServe(t *testing.T) {
	Convey("Serving until the context is cancelled", t, func() {
		ln, e := net.Listen("tcp", "127.0.0.1:0")
		So(e, ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "hello")
		})
		errc := make(chan error, 1)
		go func() {
			errc <- Serve(ctx, ln, h, zerolog.Nop())
		}()

		res, e := http.Get("http://" + ln.Addr().String() + "/")
		So(e, ShouldBeNil)
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		So(string(body), ShouldEqual, "hello")

		cancel()
		select {
		case e = <-errc:
		case <-time.After(5 * time.Second):
			e = errors.New("timed out")
		}
		So(errors.Is(e, context.Canceled), ShouldBeTrue)
	})

	Convey("A port that cannot be bound is an error", t, func() {
		ln, e := net.Listen("tcp", "127.0.0.1:0")
		So(e, ShouldBeNil)
		defer ln.Close()
		e = Listen(context.Background(), ln.Addr().String(), http.NotFoundHandler(), zerolog.Nop())
		So(e, ShouldNotBeNil)
	})
}

func TestAccessLog(t *testing.T) {
	Convey("Access log records status and size", t, func() {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		h := AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusTeapot)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "http://a.example.com/x", nil))
		So(rec.Code, ShouldEqual, http.StatusTeapot)
		line := buf.String()
		So(line, ShouldContainSubstring, `"status":418`)
		So(line, ShouldContainSubstring, `"level":"warn"`)
		So(line, ShouldContainSubstring, `"host":"a.example.com"`)
		So(strings.Count(line, "\n"), ShouldEqual, 1)
	})
}
