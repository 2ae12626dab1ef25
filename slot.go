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
	"time"
)

// SlotState is the lifecycle state of a worker slot.  A slot is identified
// by its Tag, and outlives the individual processes that fill it.
//
//	Spawning --> Running --> Exited{code} --> Restarting --> Spawning
//	                                      \-> Terminal
type SlotState int

const (
	Spawning SlotState = iota
	Running
	Exited
	Restarting
	Terminal
)

func (s SlotState) String() string {
	switch s {
	case Spawning:
		return "spawning"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Restarting:
		return "restarting"
	case Terminal:
		return "terminal"
	}
	return fmt.Sprintf("SlotState(%d)", int(s))
}

// Slot is a snapshot of a worker slot.
type Slot struct {
	Tag      Tag
	State    SlotState
	Pid      int
	Starts   int
	ExitCode int
	Status   string
	Stamp    time.Time
}

type slot struct {
	Slot
	rateLog    bool
	rateLimit  int
	ratePeriod time.Duration
	startTimes []time.Time
}

func newSlot(tag Tag) *slot {
	s := &slot{}
	s.Tag = tag
	s.ratePeriod = time.Minute
	s.rateLimit = 10
	s.startTimes = make([]time.Time, s.rateLimit)
	s.setState(Spawning, "Added")
	return s
}

func (s *slot) setState(st SlotState, reason string) {
	s.State = st
	s.Status = reason
	s.Stamp = time.Now()
}

func (s *slot) started(pid int) {
	s.startTimes[s.Starts%s.rateLimit] = time.Now()
	s.Starts++
	s.Pid = pid
	s.setState(Running, fmt.Sprintf("Started pid %d", pid))
}

func (s *slot) exited(code int) {
	s.ExitCode = code
	s.setState(Exited, fmt.Sprintf("Exited with status %d", code))
}

// tooQuickly reports that the slot has started rateLimit times within
// ratePeriod.  It returns true only on the first start of such an episode,
// so a crash loop is logged once rather than on every restart.  It never
// delays a restart.  Call it before started.
func (s *slot) tooQuickly() bool {
	if s.Starts < s.rateLimit {
		return false
	}
	oldest := s.startTimes[s.Starts%s.rateLimit]
	if time.Now().Before(oldest.Add(s.ratePeriod)) {
		first := !s.rateLog
		s.rateLog = true
		return first
	}
	s.rateLog = false
	return false
}
