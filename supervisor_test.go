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
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/subvisor/subvisor/registry"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

func testLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: &testLog{t}, NoColor: true})
}

type fakeProc struct {
	pid    int
	tag    Tag
	done   chan int
	once   sync.Once
	killed int32
}

func (p *fakeProc) Pid() int {
	return p.pid
}

func (p *fakeProc) Wait() int {
	return <-p.done
}

func (p *fakeProc) Kill() error {
	atomic.StoreInt32(&p.killed, 1)
	p.exit(-1)
	return nil
}

func (p *fakeProc) exit(code int) {
	p.once.Do(func() {
		p.done <- code
	})
}

func (p *fakeProc) wasKilled() bool {
	return atomic.LoadInt32(&p.killed) != 0
}

var errInjected = errors.New("injected launch failure")

type fakeLauncher struct {
	mx      sync.Mutex
	pid     int
	procs   []*fakeProc
	fail    map[Tag]bool
	spawned chan *fakeProc
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		pid:     1000,
		fail:    make(map[Tag]bool),
		spawned: make(chan *fakeProc, 64),
	}
}

func (l *fakeLauncher) Launch(tag Tag) (Process, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.fail[tag] {
		return nil, errInjected
	}
	l.pid++
	p := &fakeProc{pid: l.pid, tag: tag, done: make(chan int, 1)}
	l.procs = append(l.procs, p)
	l.spawned <- p
	return p, nil
}

func (l *fakeLauncher) failOn(tag Tag) {
	l.mx.Lock()
	l.fail[tag] = true
	l.mx.Unlock()
}

func (l *fakeLauncher) launched() []*fakeProc {
	l.mx.Lock()
	defer l.mx.Unlock()
	return append([]*fakeProc{}, l.procs...)
}

// next waits for the next launch, or returns nil after d.
func (l *fakeLauncher) next(d time.Duration) *fakeProc {
	select {
	case p := <-l.spawned:
		return p
	case <-time.After(d):
		return nil
	}
}

func (l *fakeLauncher) drain(n int) []*fakeProc {
	rv := make([]*fakeProc, 0, n)
	for i := 0; i < n; i++ {
		if p := l.next(time.Second); p != nil {
			rv = append(rv, p)
		}
	}
	return rv
}

func twoDeployments() *registry.Registry {
	reg, e := registry.New([]registry.Deployment{
		{ID: "a", Subdomain: "alpha", ServicePort: 8081},
		{ID: "b", Subdomain: "beta", ServicePort: 8082},
	})
	if e != nil {
		panic(e)
	}
	return reg
}

func slotFor(s *Supervisor, tag Tag) Slot {
	for _, sl := range s.Slots() {
		if sl.Tag == tag {
			return sl
		}
	}
	return Slot{}
}

func TestSupervisorStart(t *testing.T) {
	t.Setenv(EnvTag, "")
	Convey("Bring-up spawns deployments, then proxy, then site", t, func() {
		l := newFakeLauncher()
		s := NewSupervisor(twoDeployments(), l, testLogger(t))
		So(s.Start(), ShouldBeNil)

		procs := l.drain(4)
		So(len(procs), ShouldEqual, 4)
		var tags []string
		for _, p := range procs {
			tags = append(tags, p.tag.String())
		}
		So(tags, ShouldResemble, []string{"deployment:a", "deployment:b", "proxy", "site"})

		w := s.Workers()
		So(len(w), ShouldEqual, 4)
		for _, p := range procs {
			So(w[p.pid], ShouldResemble, p.tag)
		}
		for _, sl := range s.Slots() {
			So(sl.State, ShouldEqual, Running)
			So(sl.Starts, ShouldEqual, 1)
		}

		Convey("Stop kills everything and nothing respawns", func() {
			s.Stop()
			for _, p := range procs {
				So(p.wasKilled(), ShouldBeTrue)
			}
			So(len(s.Workers()), ShouldEqual, 0)
			So(l.next(50*time.Millisecond), ShouldBeNil)
			for _, sl := range s.Slots() {
				So(sl.State, ShouldEqual, Terminal)
			}
		})
	})
}

func TestSupervisorRestart(t *testing.T) {
	t.Setenv(EnvTag, "")
	Convey("Given a started supervisor", t, func() {
		l := newFakeLauncher()
		s := NewSupervisor(twoDeployments(), l, testLogger(t))
		So(s.Start(), ShouldBeNil)
		procs := l.drain(4)
		So(len(procs), ShouldEqual, 4)
		Reset(s.Stop)

		Convey("A deployment exiting with 1 is replaced exactly once", func() {
			pa := procs[0]
			So(pa.tag, ShouldResemble, DeploymentTag("a"))
			pa.exit(1)

			np := l.next(time.Second)
			So(np, ShouldNotBeNil)
			So(np.tag, ShouldResemble, DeploymentTag("a"))
			So(l.next(50*time.Millisecond), ShouldBeNil)

			w := s.Workers()
			So(len(w), ShouldEqual, 4)
			_, stale := w[pa.pid]
			So(stale, ShouldBeFalse)
			So(w[np.pid], ShouldResemble, DeploymentTag("a"))

			sl := slotFor(s, DeploymentTag("a"))
			So(sl.Starts, ShouldEqual, 2)
			So(sl.ExitCode, ShouldEqual, 1)
			So(sl.State, ShouldEqual, Running)
		})

		Convey("A killed worker is replaced too", func() {
			procs[2].exit(-1)
			np := l.next(time.Second)
			So(np, ShouldNotBeNil)
			So(np.tag, ShouldResemble, ProxyTag)
		})

		Convey("A duplicate exit report is ignored", func() {
			pb := procs[1]
			s.OnExit(pb, 1)
			So(l.next(time.Second), ShouldNotBeNil)
			s.OnExit(pb, 1)
			// Releases the watcher; its report is ignored as well.
			pb.exit(1)
			So(l.next(50*time.Millisecond), ShouldBeNil)
			So(len(l.launched()), ShouldEqual, 5)
		})

		Convey("Racing exits for one tag produce one replacement", func() {
			extra, e := s.Spawn(SiteTag)
			So(e, ShouldBeNil)
			So(l.next(time.Second), ShouldNotBeNil)
			first := procs[3]
			second := extra.(*fakeProc)
			So(first.tag, ShouldResemble, SiteTag)

			var wg sync.WaitGroup
			for _, p := range []*fakeProc{first, second} {
				wg.Add(1)
				go func(p *fakeProc) {
					defer wg.Done()
					s.OnExit(p, 1)
				}(p)
			}
			wg.Wait()
			first.exit(1)
			second.exit(1)

			np := l.next(time.Second)
			So(np, ShouldNotBeNil)
			So(np.tag, ShouldResemble, SiteTag)
			So(l.next(50*time.Millisecond), ShouldBeNil)

			count := 0
			for _, tag := range s.Workers() {
				if tag == SiteTag {
					count++
				}
			}
			So(count, ShouldEqual, 1)
		})
	})
}

func TestSupervisorRun(t *testing.T) {
	t.Setenv(EnvTag, "")
	Convey("A worker exiting with 0 is fatal", t, func() {
		l := newFakeLauncher()
		s := NewSupervisor(twoDeployments(), l, testLogger(t))
		errc := make(chan error, 1)
		go func() {
			errc <- s.Run(context.Background())
		}()
		procs := l.drain(4)
		So(len(procs), ShouldEqual, 4)

		procs[2].exit(0)
		var e error
		select {
		case e = <-errc:
		case <-time.After(5 * time.Second):
		}
		So(errors.Is(e, ErrUnexpectedExit), ShouldBeTrue)
		So(e.Error(), ShouldContainSubstring, "proxy")
		So(len(l.launched()), ShouldEqual, 4)
		for _, p := range procs {
			if p != procs[2] {
				So(p.wasKilled(), ShouldBeTrue)
			}
		}
		So(slotFor(s, ProxyTag).State, ShouldEqual, Terminal)
	})

	Convey("Cancelling the context stops the workers", t, func() {
		l := newFakeLauncher()
		s := NewSupervisor(twoDeployments(), l, testLogger(t))
		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() {
			errc <- s.Run(ctx)
		}()
		procs := l.drain(4)
		So(len(procs), ShouldEqual, 4)
		cancel()
		So(errors.Is(<-errc, context.Canceled), ShouldBeTrue)
		for _, p := range procs {
			So(p.wasKilled(), ShouldBeTrue)
		}
		So(len(s.Workers()), ShouldEqual, 0)
	})

	Convey("A failed respawn is fatal", t, func() {
		l := newFakeLauncher()
		s := NewSupervisor(twoDeployments(), l, testLogger(t))
		errc := make(chan error, 1)
		go func() {
			errc <- s.Run(context.Background())
		}()
		procs := l.drain(4)
		So(len(procs), ShouldEqual, 4)

		l.failOn(DeploymentTag("b"))
		procs[1].exit(2)
		e := <-errc
		So(errors.Is(e, errInjected), ShouldBeTrue)
		So(slotFor(s, DeploymentTag("b")).State, ShouldEqual, Terminal)
	})

	Convey("A failed bring-up is reported", t, func() {
		l := newFakeLauncher()
		l.failOn(ProxyTag)
		s := NewSupervisor(twoDeployments(), l, testLogger(t))
		e := s.Run(context.Background())
		So(errors.Is(e, errInjected), ShouldBeTrue)
		for _, p := range l.launched() {
			So(p.wasKilled(), ShouldBeTrue)
		}
	})
}

func TestDoubleSupervise(t *testing.T) {
	Convey("A worker may not supervise", t, func() {
		t.Setenv(EnvTag, "proxy")
		s := NewSupervisor(twoDeployments(), newFakeLauncher(), zerolog.Nop())
		So(func() { s.Spawn(ProxyTag) }, ShouldPanicWith, ErrCannotDoubleSupervise)
		So(func() { s.Start() }, ShouldPanicWith, ErrCannotDoubleSupervise)
	})
}
