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
)

type HelpPanel struct {
	text *views.TextArea

	screen
}

func (h *HelpPanel) HandleEvent(ev tcell.Event) bool {
	if h.back(ev) {
		return true
	}
	return h.screen.HandleEvent(ev)
}

func NewHelpPanel(app *App) *HelpPanel {
	h := &HelpPanel{text: views.NewTextArea()}
	h.init(app, "Help", "[ESC] Main")

	h.text.SetLines([]string{
		"Supported keys (not all keys available in all contexts)",
		"",
		"  <ESC>          : return to main screen",
		"  <CTRL-C>       : quit",
		"  <CTRL-L>       : refresh the screen",
		"  <H>            : show this help",
		"  <UP>, <DOWN>   : navigation",
		"  <I>, <ENTER>   : details for the selected listener",
		"",
		"Listeners are probed over loopback once a second.",
		"Any HTTP answer below 500 counts as up.",
	})
	h.SetContent(h.text)
	return h
}
