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

// Package verifier drives a browser through fixed interaction sequences
// against the game and saves screenshots at named checkpoints.
package verifier

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// BrowserOptions controls how the browser is obtained.
type BrowserOptions struct {
	// RemoteURL is the DevTools URL of an already running Chrome.
	// Empty means a local Chrome is launched.
	RemoteURL string
	// ExecPath overrides the Chrome binary used for local launches.
	ExecPath string
	// Headful shows the browser window instead of running headless.
	Headful bool
}

// Session is one browser instance. It is owned by a single flow and is
// not safe for concurrent use.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	run   func(ctx context.Context, actions ...chromedp.Action) error
	shoot func(ctx context.Context) ([]byte, error)

	closeOnce sync.Once
	closeErr  error
}

// Launch starts (or connects to) a browser. The browser process is
// started eagerly so that a missing binary fails here rather than on the
// first navigation.
func Launch(ctx context.Context, opts BrowserOptions) (*Session, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if opts.Headful {
			allocOpts = append(allocOpts, chromedp.Flag("headless", false))
		}
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, allocOpts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(log.Printf),
		chromedp.WithLogf(log.Printf),
	)
	s := &Session{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		run:   chromedp.Run,
		shoot: captureViewport,
	}

	if err := chromedp.Run(browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	listenConsole(browserCtx)
	return s, nil
}

// Context returns the browser context. Per-step deadlines must be derived
// from it.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Do runs actions against the current page.
func (s *Session) Do(ctx context.Context, actions ...chromedp.Action) error {
	return s.run(ctx, actions...)
}

// Screenshot returns a PNG of the current viewport.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.shoot(ctx)
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if chromedp.FromContext(s.ctx) != nil {
			if err := chromedp.Cancel(s.ctx); err != nil && s.ctx.Err() == nil {
				s.closeErr = fmt.Errorf("close browser: %w", err)
			}
		}
		s.cancel()
	})
	return s.closeErr
}

func captureViewport(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// listenConsole logs page errors. They are not fatal: the game's own
// errors are outside what a verification run asserts.
func listenConsole(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			if ev.Type == runtime.APITypeError {
				args := make([]string, len(ev.Args))
				for i, arg := range ev.Args {
					args[i] = string(arg.Value)
				}
				log.Printf("JS CONSOLE ERROR: %s", strings.Join(args, " "))
			}
		case *runtime.EventExceptionThrown:
			log.Printf("JS EXCEPTION: %s", ev.ExceptionDetails.Text)
		}
	})
}
