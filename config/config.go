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

// Package config holds delverify settings. Defaults reproduce a plain
// run with no flags; a YAML file and command line flags override them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ttbt-io/delverify/gameserver"
	"github.com/ttbt-io/delverify/verifier"
)

// Config is the top-level configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Output  OutputConfig  `yaml:"output"`
	Forest  ForestConfig  `yaml:"forest"`
	Menu    MenuConfig    `yaml:"menu"`
	Server  ServerConfig  `yaml:"server"`
	History HistoryConfig `yaml:"history"`
}

// BrowserConfig controls how Chrome is obtained and how long steps may take.
type BrowserConfig struct {
	Remote      string        `yaml:"remote"`
	ExecPath    string        `yaml:"exec_path"`
	Headful     bool          `yaml:"headful"`
	StepTimeout time.Duration `yaml:"step_timeout"`
	RunTimeout  time.Duration `yaml:"run_timeout"`
}

// OutputConfig says where files go.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	DebugDir string `yaml:"debug_dir"`
	Debug    bool   `yaml:"debug"`
}

type ForestConfig struct {
	Page     string            `yaml:"page"`
	Viewport verifier.Viewport `yaml:"viewport"`
}

type MenuConfig struct {
	URL        string             `yaml:"url"`
	Viewport   *verifier.Viewport `yaml:"viewport"`
	ServerWait time.Duration      `yaml:"server_wait"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	Root string `yaml:"root"`
}

// HistoryConfig controls the run log. The passphrase comes from the
// DV_MASTER_KEY environment variable, never from the file.
type HistoryConfig struct {
	Disabled bool   `yaml:"disabled"`
	DataDir  string `yaml:"data_dir"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file. Unset fields keep their
// defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.StepTimeout <= 0 {
		c.Browser.StepTimeout = verifier.DefaultStepTimeout
	}
	if c.Browser.RunTimeout <= 0 {
		c.Browser.RunTimeout = 3 * time.Minute
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.Output.DebugDir == "" {
		c.Output.DebugDir = "debug"
	}
	if c.Forest.Page == "" {
		c.Forest.Page = verifier.DefaultForestPage
	}
	if c.Forest.Viewport == (verifier.Viewport{}) {
		c.Forest.Viewport = verifier.MobileViewport
	}
	if c.Menu.URL == "" {
		c.Menu.URL = verifier.DefaultMenuURL
	}
	if c.Menu.ServerWait <= 0 {
		c.Menu.ServerWait = 5 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = gameserver.DefaultAddr
	}
	if c.Server.Root == "" {
		c.Server.Root = gameserver.DefaultRoot
	}
	if c.History.DataDir == "" {
		c.History.DataDir = ".delverify"
	}
}

// Validate rejects settings no run could succeed with.
func (c *Config) Validate() error {
	if c.Forest.Viewport.Width <= 0 || c.Forest.Viewport.Height <= 0 {
		return fmt.Errorf("forest viewport must be positive, got %dx%d", c.Forest.Viewport.Width, c.Forest.Viewport.Height)
	}
	if vp := c.Menu.Viewport; vp != nil && (vp.Width <= 0 || vp.Height <= 0) {
		return fmt.Errorf("menu viewport must be positive, got %dx%d", vp.Width, vp.Height)
	}
	if c.Browser.Remote != "" && (c.Browser.ExecPath != "" || c.Browser.Headful) {
		return fmt.Errorf("browser remote %q cannot be combined with exec_path or headful", c.Browser.Remote)
	}
	if c.Browser.StepTimeout > c.Browser.RunTimeout {
		return fmt.Errorf("step_timeout %v exceeds run_timeout %v", c.Browser.StepTimeout, c.Browser.RunTimeout)
	}
	return nil
}

// Runner builds a verifier.Runner from the settings.
func (c *Config) Runner() *verifier.Runner {
	r := &verifier.Runner{
		Browser: verifier.BrowserOptions{
			RemoteURL: c.Browser.Remote,
			ExecPath:  c.Browser.ExecPath,
			Headful:   c.Browser.Headful,
		},
		OutputDir:   c.Output.Dir,
		StepTimeout: c.Browser.StepTimeout,
	}
	if c.Output.Debug {
		r.DebugDir = c.Output.DebugDir
	}
	return r
}

func (c *Config) ForestParams() verifier.ForestParams {
	return verifier.ForestParams{
		Page:     c.Forest.Page,
		Viewport: c.Forest.Viewport,
	}
}

func (c *Config) MenuParams() verifier.MenuParams {
	return verifier.MenuParams{
		URL:        c.Menu.URL,
		Viewport:   c.Menu.Viewport,
		ServerWait: c.Menu.ServerWait,
	}
}

func (c *Config) ServerOptions() gameserver.Options {
	return gameserver.Options{
		Addr: c.Server.Addr,
		Root: c.Server.Root,
	}
}
