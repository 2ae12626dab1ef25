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

package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/subvisor/subvisor/subvisorctl/util"
)

// Health is the overall state of a set of listeners, as shown by the
// color of the status bar.
type Health int

const (
	HealthUnknown Health = iota // nothing probed yet
	HealthGood
	HealthBad
)

// HealthOf counts the listeners that are up and down.  Any listener down
// makes the whole set bad.
func HealthOf(probes []util.Probe) (up, down int, h Health) {
	for i := range probes {
		if probes[i].Up {
			up++
		} else {
			down++
		}
	}
	switch {
	case down > 0:
		h = HealthBad
	case up > 0:
		h = HealthGood
	}
	return up, down, h
}

// screen frames each view of the App: a title naming what is shown, a
// status line colored by health, and the keys that work there.
type screen struct {
	title  *TitleBar
	status *StatusBar
	keys   *KeyBar
	app    *App

	views.Panel
}

func (s *screen) init(app *App, title string, keys ...string) {
	s.app = app

	s.title = NewTitleBar()
	s.title.SetRight(app.GetAppName())
	s.retitle(title)
	s.status = NewStatusBar()
	s.keys = NewKeyBar()
	s.keys.SetKeys(keys)

	s.Panel.SetTitle(s.title)
	s.Panel.SetMenu(s.status)
	s.Panel.SetStatus(s.keys)
}

func (s *screen) retitle(title string) {
	if title == "" {
		title = " "
	}
	s.title.SetCenter(title)
}

func (s *screen) setKeys(keys ...string) {
	s.keys.SetKeys(keys)
}

func (s *screen) report(h Health, text string) {
	s.status.SetText(text)
	switch h {
	case HealthGood:
		s.status.SetGood()
	case HealthBad:
		s.status.SetError()
	default:
		s.status.SetNormal()
	}
}

func (s *screen) fail(e error) {
	s.report(HealthBad, e.Error())
}

// back handles the keys that leave a detail screen for the main one.
func (s *screen) back(ev tcell.Event) bool {
	kev, ok := ev.(*tcell.EventKey)
	if !ok {
		return false
	}
	switch {
	case kev.Key() == tcell.KeyEsc,
		kev.Key() == tcell.KeyRune && (kev.Rune() == 'q' || kev.Rune() == 'Q'):
		s.app.ShowMain()
		return true
	}
	return false
}
