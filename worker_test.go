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
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/subvisor/subvisor/app"
	"github.com/subvisor/subvisor/registry"
)

func freePort() int {
	ln, e := net.Listen("tcp", "127.0.0.1:0")
	if e != nil {
		panic(e)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// getWithRetry polls until the listener is up.
func getWithRetry(url string) (*http.Response, error) {
	var e error
	for i := 0; i < 50; i++ {
		var res *http.Response
		if res, e = http.Get(url); e == nil {
			return res, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil, e
}

func TestWorkerDispatch(t *testing.T) {
	Convey("Given a worker configuration", t, func() {
		root := t.TempDir()
		pub := app.PublicDir(root)
		So(os.MkdirAll(pub, 0o755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(pub, "index.html"), []byte("alpha home"), 0o644), ShouldBeNil)

		port := freePort()
		reg, e := registry.New([]registry.Deployment{
			{ID: "a", Subdomain: "alpha", ServicePort: port, RootPath: root},
		})
		So(e, ShouldBeNil)

		cfg := DefaultConfig()
		cfg.ProxyHost = "127.0.0.1"
		cfg.ProxyPort = 0
		w := &Worker{
			Config:   cfg,
			Registry: reg,
			Logger:   zerolog.Nop(),
			Exit:     func(int) {},
		}

		Convey("An unknown deployment fails", func() {
			w.Tag = DeploymentTag("zzz")
			So(errors.Is(w.Dispatch(context.Background()), ErrUnknownDeployment), ShouldBeTrue)
		})

		Convey("An invalid role fails", func() {
			w.Tag = Tag{}
			So(errors.Is(w.Dispatch(context.Background()), ErrUnknownRole), ShouldBeTrue)
		})

		Convey("A deployment worker serves its files until cancelled", func() {
			w.Tag = DeploymentTag("a")
			ctx, cancel := context.WithCancel(context.Background())
			errc := make(chan error, 1)
			go func() { errc <- w.Dispatch(ctx) }()

			res, e := getWithRetry("http://127.0.0.1:" + strconv.Itoa(port) + "/")
			So(e, ShouldBeNil)
			b, _ := io.ReadAll(res.Body)
			res.Body.Close()
			So(string(b), ShouldEqual, "alpha home")

			cancel()
			So(errors.Is(<-errc, context.Canceled), ShouldBeTrue)
		})

		Convey("A proxy worker runs until cancelled", func() {
			w.Tag = ProxyTag
			w.Config.MetricsAddr = "127.0.0.1:" + strconv.Itoa(freePort())
			ctx, cancel := context.WithCancel(context.Background())
			errc := make(chan error, 1)
			go func() { errc <- w.Dispatch(ctx) }()

			res, e := getWithRetry("http://" + w.Config.MetricsAddr + "/metrics")
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusOK)

			cancel()
			So(errors.Is(<-errc, context.Canceled), ShouldBeTrue)
		})

		Convey("A site worker answers health checks", func() {
			w.Tag = SiteTag
			w.Config.SitePort = freePort()
			ctx, cancel := context.WithCancel(context.Background())
			errc := make(chan error, 1)
			go func() { errc <- w.Run(ctx) }()

			res, e := getWithRetry("http://" + w.Config.SiteAddr() + "/healthz")
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusOK)

			cancel()
			So(errors.Is(<-errc, context.Canceled), ShouldBeTrue)
		})

		Convey("A taken port is an error", func() {
			ln, e := net.Listen("tcp", DeploymentAddr(port))
			So(e, ShouldBeNil)
			defer ln.Close()
			w.Tag = DeploymentTag("a")
			So(w.Dispatch(context.Background()), ShouldNotBeNil)
		})
	})
}
