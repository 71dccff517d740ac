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
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	// ErrTargetMissing is returned when a local page does not exist.
	ErrTargetMissing = errors.New("target page not found")
	// ErrServerUnreachable is returned when the app server does not answer.
	ErrServerUnreachable = errors.New("server unreachable")
	// ErrStepFailed wraps every failure inside a flow step.
	ErrStepFailed = errors.New("step failed")
)

const (
	DefaultStepTimeout = 30 * time.Second
	debugTimeout       = 5 * time.Second
)

// Step is one stage of a flow. Actions run first; when Checkpoint is set
// the viewport is then saved under that file name.
type Step struct {
	Name       string
	Actions    []chromedp.Action
	Checkpoint string
}

// Flow is a straight-line sequence of steps. Preflight, when set, runs
// before any browser is launched.
type Flow struct {
	Name      string
	Preflight func(ctx context.Context) error
	Steps     []Step
}

// Checkpoints lists the screenshot file names in the order they are taken.
func (f Flow) Checkpoints() []string {
	var out []string
	for _, s := range f.Steps {
		if s.Checkpoint != "" {
			out = append(out, s.Checkpoint)
		}
	}
	return out
}

// Checkpoint is a screenshot written by a step.
type Checkpoint struct {
	Step   string
	Path   string
	Size   int64
	SHA256 string
}

// Result describes a finished run, successful or not.
type Result struct {
	Flow        string
	StartedAt   time.Time
	FinishedAt  time.Time
	Checkpoints []Checkpoint
	Err         error
}

// Runner executes flows.
type Runner struct {
	Browser BrowserOptions
	// OutputDir receives the checkpoint screenshots.
	OutputDir string
	// DebugDir, when set, receives an HTML dump and a screenshot of the
	// page whenever a step fails.
	DebugDir    string
	StepTimeout time.Duration

	launch func(ctx context.Context, opts BrowserOptions) (*Session, error)
}

// Run executes f from start to finish. The browser is closed before Run
// returns on every path. The returned Result is never nil; its Err is the
// same error Run returns.
func (r *Runner) Run(ctx context.Context, f Flow) (*Result, error) {
	res := &Result{Flow: f.Name, StartedAt: time.Now()}
	err := r.run(ctx, f, res)
	res.FinishedAt = time.Now()
	res.Err = err
	return res, err
}

func (r *Runner) run(ctx context.Context, f Flow, res *Result) (err error) {
	log.Printf("Running flow %q (%d steps)", f.Name, len(f.Steps))
	if f.Preflight != nil {
		if err := f.Preflight(ctx); err != nil {
			return fmt.Errorf("%s: preflight: %w", f.Name, err)
		}
	}

	launch := r.launch
	if launch == nil {
		launch = Launch
	}
	s, err := launch(ctx, r.Browser)
	if err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			log.Printf("Flow %q: %v", f.Name, cerr)
		}
	}()

	for i, step := range f.Steps {
		cp, err := r.runStep(s, i, step)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		if cp != nil {
			res.Checkpoints = append(res.Checkpoints, *cp)
		}
	}
	log.Printf("Flow %q completed, %d screenshots", f.Name, len(res.Checkpoints))
	return nil
}

// runStep executes one step with its own deadline. On failure nothing is
// written to the output directory.
func (r *Runner) runStep(s *Session, i int, step Step) (*Checkpoint, error) {
	log.Printf("STEP: %s", step.Name)
	timeout := r.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	stepCtx, cancel := context.WithTimeout(s.Context(), timeout)
	defer cancel()

	type outcome struct {
		buf []byte
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		if len(step.Actions) > 0 {
			if err := s.Do(stepCtx, step.Actions...); err != nil {
				done <- outcome{err: err}
				return
			}
		}
		if step.Checkpoint == "" {
			done <- outcome{}
			return
		}
		buf, err := s.Screenshot(stepCtx)
		done <- outcome{buf: buf, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-stepCtx.Done():
		out.err = stepCtx.Err()
	}
	if out.err != nil {
		log.Printf("Action '%s' failed: %v", step.Name, out.err)
		r.debugFailure(s, fmt.Sprintf("%02d-%s", i, step.Name))
		return nil, fmt.Errorf("%w: %s: %w", ErrStepFailed, step.Name, out.err)
	}
	if step.Checkpoint == "" {
		return nil, nil
	}

	cp, err := writeScreenshot(filepath.Join(r.OutputDir, step.Checkpoint), out.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStepFailed, step.Name, err)
	}
	cp.Step = step.Name
	return &cp, nil
}

func (r *Runner) debugFailure(s *Session, name string) {
	if r.DebugDir == "" {
		return
	}
	ctx, cancel := context.WithTimeout(s.Context(), debugTimeout)
	defer cancel()

	log.Printf("DEBUG: capturing failure info for %s", name)
	var htmlContent string
	if err := s.Do(ctx, chromedp.OuterHTML("html", &htmlContent, chromedp.ByQuery)); err != nil {
		log.Printf("DEBUG: Failed to capture HTML: %v", err)
	} else {
		log.Printf("DEBUG: HTML Dump for %s:\n%s", name, htmlContent)
	}

	buf, err := s.Screenshot(ctx)
	if err != nil {
		log.Printf("DEBUG: Failed to capture screenshot: %v", err)
		return
	}
	if err := os.MkdirAll(r.DebugDir, 0755); err != nil {
		log.Printf("DEBUG: %v", err)
		return
	}
	filename := filepath.Join(r.DebugDir, fmt.Sprintf("debug-%s.png", name))
	if err := os.WriteFile(filename, buf, 0644); err != nil {
		log.Printf("DEBUG: %v", err)
		return
	}
	log.Printf("DEBUG: Saved screenshot to %s", filename)
}
