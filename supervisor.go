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
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/subvisor/subvisor/registry"
)

// Number of output lines reported when a worker exits.
const exitTailLines = 10

var errStopped = errors.New("supervisor stopped")

// Supervisor owns the worker processes.  It exists only in the primary
// process.  It spawns one worker per deployment plus a proxy and a site
// worker, and it is the only place where worker exits are handled.
//
// The table mapping live process handles to tags is private to the
// Supervisor and is guarded by a single mutex.  Launching a worker and
// recording its handle happen under that mutex, so an exit can never be
// observed for a handle that has not been recorded yet.
type Supervisor struct {
	reg      *registry.Registry
	launcher Launcher
	logger   zerolog.Logger
	records  map[Process]Tag
	slots    map[Tag]*slot
	order    []Tag
	stopped  bool
	failed   chan error
	waiter   sync.WaitGroup
	mx       sync.Mutex
}

func (s *Supervisor) lock() {
	s.mx.Lock()
}

func (s *Supervisor) unlock() {
	s.mx.Unlock()
}

func mustBePrimary() {
	if !IsPrimary() {
		// This is a serious programmer mistake.
		panic(ErrCannotDoubleSupervise)
	}
}

// Spawn starts a new worker for tag and records it.  It panics with
// ErrCannotDoubleSupervise when called from a worker process.
func (s *Supervisor) Spawn(tag Tag) (Process, error) {
	mustBePrimary()
	s.lock()
	defer s.unlock()
	return s.spawn(tag)
}

// spawn is called with the lock held.
func (s *Supervisor) spawn(tag Tag) (Process, error) {
	if s.stopped {
		return nil, errStopped
	}
	sl, ok := s.slots[tag]
	if !ok {
		sl = newSlot(tag)
		s.slots[tag] = sl
		s.order = append(s.order, tag)
	}
	sl.setState(Spawning, "Spawning")
	if sl.tooQuickly() {
		s.logger.Warn().Str("worker", tag.String()).Int("starts", sl.Starts).
			Msg("worker restarting too quickly")
	}
	p, e := s.launcher.Launch(tag)
	if e != nil {
		sl.setState(Terminal, "Failed to spawn: "+e.Error())
		s.logger.Error().Err(e).Str("worker", tag.String()).Msg("spawn failed")
		return nil, fmt.Errorf("spawn %s: %w", tag, e)
	}
	sl.started(p.Pid())
	s.records[p] = tag
	s.logger.Info().Str("worker", tag.String()).Int("pid", p.Pid()).
		Int("starts", sl.Starts).Msg("worker spawned")

	s.waiter.Add(1)
	go s.watch(p)
	return p, nil
}

func (s *Supervisor) watch(p Process) {
	defer s.waiter.Done()
	code := p.Wait()
	s.OnExit(p, code)
}

// OnExit is the recovery decision for a worker that has exited.  Status 0
// is fatal for the whole Supervisor.  Any other status replaces the worker,
// unless another live worker already carries the same tag.  Exits for
// handles that are not (or no longer) recorded are ignored.
func (s *Supervisor) OnExit(p Process, code int) {
	s.lock()
	defer s.unlock()

	tag, ok := s.records[p]
	if !ok {
		s.logger.Debug().Int("pid", p.Pid()).Msg("exit for unknown worker ignored")
		return
	}
	delete(s.records, p)
	sl := s.slots[tag]
	sl.exited(code)

	ev := s.logger.Warn()
	if code == 0 {
		ev = s.logger.Error()
	}
	ev = ev.Str("worker", tag.String()).Int("pid", p.Pid()).Int("status", code)
	if o, ok := p.(outputter); ok {
		if tail := o.Output().Tail(exitTailLines); len(tail) != 0 {
			ev = ev.Strs("output", tail)
		}
	}
	ev.Msg("worker exited")

	if s.stopped {
		sl.setState(Terminal, "Stopped")
		return
	}

	if code == 0 {
		// Workers are meant to run forever; a clean exit means a
		// worker thinks its job is done.  Escalate.
		sl.setState(Terminal, "Exited cleanly")
		s.fail(fmt.Errorf("%w: %s (pid %d)", ErrUnexpectedExit, tag, p.Pid()))
		return
	}

	// Exit notifications race with each other; a replacement may
	// already be running.
	for _, other := range s.records {
		if other == tag {
			s.logger.Debug().Str("worker", tag.String()).
				Msg("worker already replaced")
			return
		}
	}

	sl.setState(Restarting, fmt.Sprintf("Restarting after status %d", code))
	if _, e := s.spawn(tag); e != nil {
		s.fail(e)
	}
}

// fail stops everything and reports e to Run.  Call with lock held.
func (s *Supervisor) fail(e error) {
	s.logger.Error().Err(e).Msg("supervisor terminating")
	s.stop()
	select {
	case s.failed <- e:
	default:
	}
}

// stop kills every live worker.  Call with lock held.
func (s *Supervisor) stop() {
	s.stopped = true
	for p, tag := range s.records {
		if e := p.Kill(); e != nil {
			s.logger.Warn().Err(e).Str("worker", tag.String()).
				Int("pid", p.Pid()).Msg("kill failed")
		}
	}
}

// Start brings the system up: one worker per deployment, in registry
// order, then the proxy, then the site.
func (s *Supervisor) Start() error {
	mustBePrimary()
	s.lock()
	defer s.unlock()

	tags := make([]Tag, 0, s.reg.Len()+2)
	for _, d := range s.reg.Deployments() {
		tags = append(tags, DeploymentTag(d.ID))
	}
	tags = append(tags, ProxyTag, SiteTag)
	for _, tag := range tags {
		if _, e := s.spawn(tag); e != nil {
			return e
		}
	}
	s.logger.Info().Int("workers", len(tags)).Msg("supervisor started")
	return nil
}

// Stop kills all workers, and waits for their exits to be handled.  No
// worker is spawned after Stop.
func (s *Supervisor) Stop() {
	s.lock()
	s.stop()
	s.unlock()
	s.waiter.Wait()
}

// Run starts the workers and supervises them until ctx is done or a worker
// exit is fatal.  When Run returns, every worker has been killed.  The
// returned error is never nil; a fatal exit yields an error wrapping
// ErrUnexpectedExit.
func (s *Supervisor) Run(ctx context.Context) error {
	if e := s.Start(); e != nil {
		s.Stop()
		return e
	}
	var e error
	select {
	case <-ctx.Done():
		e = ctx.Err()
		s.logger.Info().Msg("supervisor shutting down")
	case e = <-s.failed:
	}
	s.Stop()
	return e
}

// Workers returns the tags of the live workers, keyed by pid.
func (s *Supervisor) Workers() map[int]Tag {
	s.lock()
	defer s.unlock()
	rv := make(map[int]Tag, len(s.records))
	for p, tag := range s.records {
		rv[p.Pid()] = tag
	}
	return rv
}

// Slots returns a snapshot of every slot, in the order they were first
// spawned.
func (s *Supervisor) Slots() []Slot {
	s.lock()
	defer s.unlock()
	rv := make([]Slot, 0, len(s.order))
	for _, tag := range s.order {
		rv = append(rv, s.slots[tag].Slot)
	}
	return rv
}

// NewSupervisor returns a Supervisor for the deployments in reg.
func NewSupervisor(reg *registry.Registry, l Launcher, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		reg:      reg,
		launcher: l,
		logger:   logger.With().Str("component", "supervisor").Logger(),
		records:  make(map[Process]Tag),
		slots:    make(map[Tag]*slot),
		failed:   make(chan error, 1),
	}
}
