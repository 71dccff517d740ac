// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package verifier

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
)

// Elements the game must expose.
const (
	DashButtonID    = "dash-btn"
	RangedButtonID  = "ranged-btn"
	GameCanvas      = "canvas#gameCanvas"
	DailyButton     = "button.btn-daily"
	WarriorClassSel = "#class-warrior"
	RogueClassSel   = "#class-rogue"
)

// Screenshot file names.
const (
	ForestShot         = "verification_forest.png"
	MainMenuShot       = "verification_main_menu.png"
	GameShot           = "verification_game.png"
	ClassSelectionShot = "verification_class_selection.png"
)

const (
	ForestFlowName = "forest"
	MenuFlowName   = "menu"

	DefaultForestPage = "Dungeon_devler/forest.html"
	DefaultMenuURL    = "http://localhost:8080/index.html"

	defaultServerWait = 5 * time.Second
)

// ForestParams configures the forest flow.
type ForestParams struct {
	// Page is the local HTML file, relative to the working directory or
	// absolute.
	Page     string
	Viewport Viewport
}

// ForestFlow opens the forest page on a phone-sized viewport, forces the
// dash and ranged buttons visible and captures the result. The buttons
// are normally revealed by upgrades; forcing them gives a deterministic
// sample of their styling.
func ForestFlow(p ForestParams) (Flow, error) {
	if p.Page == "" {
		p.Page = DefaultForestPage
	}
	if p.Viewport == (Viewport{}) {
		p.Viewport = MobileViewport
	}
	target, err := FileURL(p.Page)
	if err != nil {
		return Flow{}, fmt.Errorf("forest page %q: %w", p.Page, err)
	}
	vp := p.Viewport
	return Flow{
		Name: ForestFlowName,
		Preflight: func(context.Context) error {
			return CheckFile(p.Page)
		},
		Steps: []Step{
			{Name: "open forest", Actions: []chromedp.Action{OpenPage(target, &vp)}},
			{Name: "reveal skill buttons", Actions: []chromedp.Action{
				ForceDisplay(DashButtonID, "flex"),
				ForceDisplay(RangedButtonID, "flex"),
			}},
			{Name: "capture forest", Checkpoint: ForestShot},
		},
	}, nil
}

// MenuParams configures the menu flow.
type MenuParams struct {
	// URL of the main menu page served over HTTP.
	URL string
	// Viewport is optional; the browser default is used when nil.
	Viewport *Viewport
	// ServerWait bounds the reachability probe before launch.
	ServerWait time.Duration
}

// MenuFlow walks the served game from the main menu into a daily run,
// then back to the menu to pick classes.
func MenuFlow(p MenuParams) (Flow, error) {
	if p.URL == "" {
		p.URL = DefaultMenuURL
	}
	if p.ServerWait <= 0 {
		p.ServerWait = defaultServerWait
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return Flow{}, fmt.Errorf("menu url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Flow{}, fmt.Errorf("menu url %q: scheme must be http or https", p.URL)
	}
	target := u.String()
	return Flow{
		Name: MenuFlowName,
		Preflight: func(ctx context.Context) error {
			return WaitForServer(ctx, target, p.ServerWait)
		},
		Steps: []Step{
			{Name: "open main menu", Actions: []chromedp.Action{OpenPage(target, p.Viewport)}},
			{Name: "capture main menu", Checkpoint: MainMenuShot},
			{Name: "start daily run", Actions: []chromedp.Action{
				Click(DailyButton),
				WaitExists(GameCanvas),
			}},
			{Name: "capture game", Checkpoint: GameShot},
			{Name: "return to main menu", Actions: []chromedp.Action{chromedp.Navigate(target)}},
			{Name: "select classes", Actions: []chromedp.Action{
				Click(WarriorClassSel),
				Click(RogueClassSel),
			}},
			{Name: "capture class selection", Checkpoint: ClassSelectionShot},
		},
	}, nil
}
