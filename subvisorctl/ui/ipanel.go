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
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/subvisor/subvisor/subvisorctl/util"
)

// InfoPanel shows the details of one listener.
type InfoPanel struct {
	text *views.TextArea
	name string

	screen
}

func (i *InfoPanel) SetName(name string) {
	i.name = name
	i.retitle(name)
}

func (i *InfoPanel) HandleEvent(ev tcell.Event) bool {
	if i.back(ev) {
		return true
	}
	return i.screen.HandleEvent(ev)
}

func (i *InfoPanel) Draw() {
	i.update()
	i.screen.Draw()
}

func (i *InfoPanel) update() {
	p, e := i.app.GetItem(i.name)
	if e != nil {
		i.fail(e)
		i.text.SetLines(nil)
		return
	}
	i.text.SetLines(InfoLines(p))
	_, _, health := HealthOf([]util.Probe{*p})
	i.report(health, fmt.Sprintf("Probed %s ago",
		util.FormatDuration(time.Since(p.Time))))
}

// InfoLines describes a probe result.
func InfoLines(p *util.Probe) []string {
	lines := []string{
		fmt.Sprintf("Name:       %s", p.Name),
		fmt.Sprintf("Kind:       %s", p.Kind),
		fmt.Sprintf("URL:        %s", p.URL),
		fmt.Sprintf("Status:     %s", util.Status(p)),
		fmt.Sprintf("Code:       %d", p.Code),
		fmt.Sprintf("Latency:    %v", p.Latency),
	}
	if p.Err != nil {
		lines = append(lines, fmt.Sprintf("Error:      %v", p.Err))
	}
	if d := p.Deployment; d != nil {
		lines = append(lines,
			"",
			fmt.Sprintf("Subdomain:  %s", d.Subdomain),
			fmt.Sprintf("Port:       %d", d.ServicePort),
			fmt.Sprintf("Render:     %s", d.RenderMode()),
			fmt.Sprintf("Root:       %s", d.RootPath),
		)
		if d.EntryServer {
			lines = append(lines, fmt.Sprintf("Start:      %s", d.Start))
		}
	}
	return lines
}

func NewInfoPanel(app *App) *InfoPanel {
	i := &InfoPanel{text: views.NewTextArea()}
	i.init(app, "", "[ESC] Main")
	i.SetContent(i.text)
	return i
}
