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
	"math/rand/v2"
	"strings"
	"time"
)

// RuntimeProfile selects the self-termination delay distribution.
type RuntimeProfile int

const (
	Development RuntimeProfile = iota
	Production
)

func (p RuntimeProfile) String() string {
	if p == Production {
		return "production"
	}
	return "development"
}

// ParseProfile maps "production" (any case) to Production, and everything
// else to Development.
func ParseProfile(s string) RuntimeProfile {
	if strings.EqualFold(strings.TrimSpace(s), "production") {
		return Production
	}
	return Development
}

// Window returns the closed interval self-termination delays are drawn
// from.
func (p RuntimeProfile) Window() (time.Duration, time.Duration) {
	if p == Production {
		return 30 * time.Minute, 90 * time.Minute
	}
	return 45 * time.Second, 165 * time.Second
}

// SelfTerminationDelay draws a uniformly distributed delay from the
// profile's window.  A nil rng uses the global source.
func SelfTerminationDelay(p RuntimeProfile, rng *rand.Rand) time.Duration {
	lo, hi := p.Window()
	span := int64(hi-lo) + 1
	var n int64
	if rng == nil {
		n = rand.Int64N(span)
	} else {
		n = rng.Int64N(span)
	}
	return lo + time.Duration(n)
}

// ArmSelfTermination schedules exit(1) after a randomized delay, and
// returns the delay chosen.  Once armed the timer always fires; no handle
// is returned to cancel it.
func ArmSelfTermination(p RuntimeProfile, exit func(int)) time.Duration {
	d := SelfTerminationDelay(p, nil)
	time.AfterFunc(d, func() {
		exit(1)
	})
	return d
}
