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
	"time"

	"github.com/spf13/cobra"

	"github.com/ttbt-io/delverify/config"
)

// globalOptions holds the persistent flags. They override the config
// file only when set explicitly.
type globalOptions struct {
	configPath  string
	outputDir   string
	chromeURL   string
	chromePath  string
	headful     bool
	stepTimeout time.Duration
	runTimeout  time.Duration
	dataDir     string
	debug       bool
	noHistory   bool
}

// NewRootCmd creates the root command. Without a subcommand it runs the
// forest flow.
func NewRootCmd() *cobra.Command {
	o := &globalOptions{}
	forest := &forestOptions{}
	cmd := &cobra.Command{
		Use:   "delverify",
		Short: "Screenshot verification for the Dungeon Delver frontend",
		Long: `delverify opens the game in a headless Chrome, performs a short fixed
sequence of interactions and saves screenshots for manual review.

Run without arguments to capture the forest page. Use "menu" to walk the
served game from the main menu to class selection.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForest(cmd, o, forest)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&o.outputDir, "output-dir", ".", "Directory to save screenshots")
	pf.StringVar(&o.chromeURL, "chrome-url", "", "The url of the remote debugging port (default: launch a local Chrome)")
	pf.StringVar(&o.chromePath, "chrome-path", "", "Chrome binary for local launches")
	pf.BoolVar(&o.headful, "headful", false, "Show the browser window")
	pf.DurationVar(&o.stepTimeout, "step-timeout", 30*time.Second, "Timeout for a single step")
	pf.DurationVar(&o.runTimeout, "run-timeout", 3*time.Minute, "Timeout for the whole run")
	pf.StringVar(&o.dataDir, "data-dir", ".delverify", "Directory for run history")
	pf.BoolVar(&o.debug, "debug", false, "Save HTML and a screenshot of failed steps under the debug dir")
	pf.BoolVar(&o.noHistory, "no-history", false, "Do not record this run")

	cmd.AddCommand(newForestCmd(o))
	cmd.AddCommand(newMenuCmd(o))
	cmd.AddCommand(newServeCmd(o))
	cmd.AddCommand(newHistoryCmd(o))

	return cmd
}

// loadConfig merges defaults, the config file and explicitly set flags.
func loadConfig(cmd *cobra.Command, o *globalOptions) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(o.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.Output.Dir = o.outputDir
	}
	if flags.Changed("chrome-url") {
		cfg.Browser.Remote = o.chromeURL
	}
	if flags.Changed("chrome-path") {
		cfg.Browser.ExecPath = o.chromePath
	}
	if flags.Changed("headful") {
		cfg.Browser.Headful = o.headful
	}
	if flags.Changed("step-timeout") {
		cfg.Browser.StepTimeout = o.stepTimeout
	}
	if flags.Changed("run-timeout") {
		cfg.Browser.RunTimeout = o.runTimeout
	}
	if flags.Changed("data-dir") {
		cfg.History.DataDir = o.dataDir
	}
	if flags.Changed("debug") {
		cfg.Output.Debug = o.debug
	}
	if flags.Changed("no-history") {
		cfg.History.Disabled = o.noHistory
	}
	return cfg, cfg.Validate()
}
