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

// Package ui is the full screen status view of subvisorctl.
package ui

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/subvisor/subvisor/subvisorctl/util"
)

var errNotFound = errors.New("listener not found")

type App struct {
	app     *views.Application
	view    views.View
	panel   views.Widget
	main    *MainPanel
	help    *HelpPanel
	info    *InfoPanel
	client  *http.Client
	targets []util.Target
	items   []util.Probe
	err     error

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo(name string) {
	a.info.SetName(name)
	a.show(a.info)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

func (a *App) Quit() {
	a.app.Quit()
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}
	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetAppName() string {
	return "subvisor"
}

// GetItems returns the last probe results.  Only call it from the
// application goroutine.
func (a *App) GetItems() ([]util.Probe, error) {
	return a.items, a.err
}

func (a *App) GetItem(name string) (*util.Probe, error) {
	if a.err != nil {
		return nil, a.err
	}
	for i := range a.items {
		if a.items[i].Name == name {
			return &a.items[i], nil
		}
	}
	return nil, errNotFound
}

// refresh probes every listener once a second until ctx is done.
func (a *App) refresh(ctx context.Context) {
	for {
		pctx, cancel := context.WithTimeout(ctx, 900*time.Millisecond)
		items := util.CheckAll(pctx, a.client, a.targets)
		cancel()

		a.app.PostFunc(func() {
			a.items = items
			a.err = nil
			a.app.Update()
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// Run shows the UI until the user quits.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.app.SetRootWidget(a)
	a.ShowMain()
	go a.refresh(ctx)
	return a.app.Run()
}

func NewApp(targets []util.Target, title string) *App {
	app := &App{
		app:     &views.Application{},
		client:  &http.Client{Timeout: 900 * time.Millisecond},
		targets: targets,
	}
	app.help = NewHelpPanel(app)
	app.info = NewInfoPanel(app)
	app.main = NewMainPanel(app, title)
	app.panel = app.main
	return app
}
