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

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ttbt-io/delverify/config"
	"github.com/ttbt-io/delverify/gameserver"
	"github.com/ttbt-io/delverify/runlog"
	"github.com/ttbt-io/delverify/verifier"
)

type forestOptions struct {
	page string
}

type menuOptions struct {
	url   string
	serve bool
}

func newForestCmd(o *globalOptions) *cobra.Command {
	fo := &forestOptions{}
	cmd := &cobra.Command{
		Use:   "forest",
		Short: "Capture the forest page on a mobile viewport",
		Long: `Opens the forest page from the local filesystem on a 375x667 viewport,
forces the dash and ranged skill buttons visible and saves
verification_forest.png.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForest(cmd, o, fo)
		},
	}
	cmd.Flags().StringVar(&fo.page, "page", "", "Forest page to open (default Dungeon_devler/forest.html)")
	return cmd
}

func newMenuCmd(o *globalOptions) *cobra.Command {
	mo := &menuOptions{}
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Walk the served game from the main menu to class selection",
		Long: `Opens the main menu over HTTP and saves verification_main_menu.png,
starts a daily run and saves verification_game.png once the game canvas
exists, then returns to the menu, selects the warrior and rogue classes
and saves verification_class_selection.png.

The game must be served on the menu URL. Pass --serve to start the
bundled static server first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, o)
			if err != nil {
				return err
			}
			if mo.url != "" {
				cfg.Menu.URL = mo.url
			}
			if _, err := verifier.MenuFlow(cfg.MenuParams()); err != nil {
				return err
			}
			if mo.serve {
				srv, err := gameserver.StartServer(cfg.ServerOptions())
				if err != nil {
					return err
				}
				defer shutdownServer(srv)
				// Without an explicit URL, point the flow at the server
				// just started.
				if mo.url == "" && cfg.Menu.URL == verifier.DefaultMenuURL {
					cfg.Menu.URL = srv.URL() + "index.html"
				}
			}
			flow, err := verifier.MenuFlow(cfg.MenuParams())
			if err != nil {
				return err
			}
			return runFlow(cmd.Context(), cfg, flow)
		},
	}
	cmd.Flags().StringVar(&mo.url, "url", "", "Main menu URL (default http://localhost:8080/index.html)")
	cmd.Flags().BoolVar(&mo.serve, "serve", false, "Start the bundled game server before the run")
	return cmd
}

func runForest(cmd *cobra.Command, o *globalOptions, fo *forestOptions) error {
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}
	if fo.page != "" {
		cfg.Forest.Page = fo.page
	}
	flow, err := verifier.ForestFlow(cfg.ForestParams())
	if err != nil {
		return err
	}
	return runFlow(cmd.Context(), cfg, flow)
}

// runFlow runs flow under the run timeout and records the outcome.
func runFlow(ctx context.Context, cfg *config.Config, flow verifier.Flow) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Browser.RunTimeout)
	defer cancel()

	store := openHistory(cfg)
	var prev *runlog.Record
	if store != nil {
		if r, err := store.Latest(flow.Name); err == nil {
			prev = r
		}
	}

	res, runErr := cfg.Runner().Run(ctx, flow)

	if store != nil {
		rec := newRecord(res)
		if err := store.Save(rec); err != nil {
			log.Printf("Failed to record run: %v", err)
		} else {
			log.Printf("Recorded run %s", rec.ID)
		}
		if prev != nil && runErr == nil {
			if changed := runlog.Changed(prev, rec); len(changed) > 0 {
				log.Printf("Changed since run %s: %s", prev.ID, strings.Join(changed, ", "))
			} else {
				log.Printf("Screenshots identical to run %s", prev.ID)
			}
		}
	}
	return runErr
}

// openHistory returns nil when history is disabled or unusable. History
// problems never fail a verification run.
func openHistory(cfg *config.Config) *runlog.Store {
	if cfg.History.Disabled {
		return nil
	}
	store, err := runlog.Open(cfg.History.DataDir, os.Getenv("DV_MASTER_KEY"))
	if err != nil {
		log.Printf("Warning: run history disabled: %v", err)
		return nil
	}
	return store
}

func newRecord(res *verifier.Result) *runlog.Record {
	rec := runlog.NewRecord(res.Flow)
	rec.StartedAt = res.StartedAt.UnixNano()
	rec.FinishedAt = res.FinishedAt.UnixNano()
	rec.Status = runlog.StatusPassed
	if res.Err != nil {
		rec.Status = runlog.StatusFailed
		rec.Error = res.Err.Error()
	}
	for _, cp := range res.Checkpoints {
		rec.Checkpoints = append(rec.Checkpoints, runlog.Checkpoint{
			Step:   cp.Step,
			Path:   cp.Path,
			Size:   cp.Size,
			SHA256: cp.SHA256,
		})
	}
	return rec
}

func shutdownServer(srv *gameserver.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Shutdown error: %v", err)
	}
}
