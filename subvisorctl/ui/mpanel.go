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

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

// MainPanel shows one line per listener, down ones first.
type MainPanel struct {
	content  *views.CellView
	selected string // name of the selected probe
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	items    []util.Probe

	screen
}

// mainModel provides the model for a CellView.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, title string) *MainPanel {
	m := &MainPanel{}

	m.init(app, title, "[Q] Quit")
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.screen.Draw()
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			m.app.ShowHelp()
			return true
		case tcell.KeyEnter:
			if m.selected != "" {
				m.app.ShowInfo(m.selected)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				m.app.Quit()
				return true
			case 'H', 'h':
				m.app.ShowHelp()
				return true
			case 'I', 'i':
				if m.selected != "" {
					m.app.ShowInfo(m.selected)
					return true
				}
			}
		}
	}
	return m.screen.HandleEvent(ev)
}

func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m
	if y < 0 || y >= len(m.lines) {
		return ' ', StyleNormal, nil, 1
	}
	ch := ' '
	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	}
	style := m.styles[y]
	if m.items[y].Name == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	// All content is ASCII.
	m := model.m
	x := 0
	for _, l := range m.lines {
		if x < len(l) {
			x = len(l)
		}
	}
	return x, len(m.lines)
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	m.curx = clamp(m.curx, 0, m.width-1)
	m.cury = clamp(m.cury, 0, m.height-1)
	if selected && m.height > 0 {
		if m.selected == "" {
			m.curx = 0
			m.cury = 0
		}
		m.selected = m.items[m.cury].Name
	} else {
		m.selected = ""
	}
}

func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// update refreshes the content from the last probe results.  It is called
// from Draw, on the application goroutine.
func (m *MainPanel) update() {
	items, err := m.app.GetItems()
	m.items = items

	if err != nil {
		m.fail(fmt.Errorf("cannot probe: %w", err))
		m.items = nil
		m.lines = nil
		m.styles = nil
		return
	}

	// Keep the cursor on the selected item as the order changes.
	found := false
	for i, item := range m.items {
		if item.Name == m.selected {
			m.cury = i
			found = true
		}
	}
	if !found {
		m.selected = ""
	}

	lines := make([]string, 0, len(items))
	styles := make([]tcell.Style, 0, len(items))
	m.height = 0
	m.width = 0

	for i := range items {
		p := &items[i]
		detail := fmt.Sprintf("%d", p.Code)
		if p.Err != nil {
			detail = p.Err.Error()
		}
		line := fmt.Sprintf("%-28s %-5s %8s   %-28s %s",
			p.Name, util.Status(p),
			p.Latency.Round(time.Millisecond).String(),
			p.URL, detail)
		if len(line) > m.width {
			m.width = len(line)
		}
		m.height++
		lines = append(lines, line)
		if p.Up {
			styles = append(styles, StyleGood)
		} else {
			styles = append(styles, StyleError)
		}
	}
	m.lines = lines
	m.styles = styles

	up, down, health := HealthOf(items)
	m.report(health, fmt.Sprintf("%6d Listeners %6d Up %6d Down",
		len(items), up, down))

	words := []string{"[Q] Quit", "[H] Help"}
	if m.selected != "" {
		words = append(words, "[I] Info")
	}
	m.setKeys(words...)
}
