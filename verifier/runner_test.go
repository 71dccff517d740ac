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
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

// fakeBrowser stands in for Chrome. failAt is the 1-based index of the
// action batch that fails; zero means nothing fails.
type fakeBrowser struct {
	runs     atomic.Int32
	shots    atomic.Int32
	launches atomic.Int32
	failAt   int32
	block    bool
	session  *Session
}

func (fb *fakeBrowser) launch(ctx context.Context, _ BrowserOptions) (*Session, error) {
	fb.launches.Add(1)
	sctx, cancel := context.WithCancel(ctx)
	fb.session = &Session{
		ctx:    sctx,
		cancel: cancel,
		run: func(ctx context.Context, actions ...chromedp.Action) error {
			n := fb.runs.Add(1)
			if fb.block {
				<-ctx.Done()
				return ctx.Err()
			}
			if n == fb.failAt {
				return errors.New("node not found")
			}
			return nil
		},
		shoot: func(ctx context.Context) ([]byte, error) {
			n := fb.shots.Add(1)
			return []byte(fmt.Sprintf("\x89PNG shot %d", n)), nil
		},
	}
	return fb.session, nil
}

func (fb *fakeBrowser) closed() bool {
	return fb.session != nil && fb.session.ctx.Err() != nil
}

func newTestRunner(t *testing.T, fb *fakeBrowser) *Runner {
	t.Helper()
	return &Runner{
		OutputDir:   t.TempDir(),
		StepTimeout: 2 * time.Second,
		launch:      fb.launch,
	}
}

func writeForestPage(t *testing.T) string {
	t.Helper()
	page := filepath.Join(t.TempDir(), "forest.html")
	if err := os.WriteFile(page, []byte("<html></html>"), 0644); err != nil {
		t.Fatal(err)
	}
	return page
}

func pngFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func TestRunForestFlow(t *testing.T) {
	fb := &fakeBrowser{}
	r := newTestRunner(t, fb)
	flow, err := ForestFlow(ForestParams{Page: writeForestPage(t)})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Run(t.Context(), flow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Checkpoints) != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", len(res.Checkpoints))
	}
	cp := res.Checkpoints[0]
	if cp.Path != filepath.Join(r.OutputDir, ForestShot) {
		t.Errorf("unexpected path %s", cp.Path)
	}
	fi, err := os.Stat(cp.Path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() == 0 || fi.Size() != cp.Size {
		t.Errorf("size mismatch: file %d, checkpoint %d", fi.Size(), cp.Size)
	}
	if len(cp.SHA256) != 64 {
		t.Errorf("unexpected digest %q", cp.SHA256)
	}
	if got := fb.runs.Load(); got != 2 {
		t.Errorf("expected 2 action batches, got %d", got)
	}
	if !fb.closed() {
		t.Error("browser was not closed")
	}
	if res.Err != nil || res.FinishedAt.Before(res.StartedAt) {
		t.Errorf("bad result %+v", res)
	}
}

func TestRunForestMissingPage(t *testing.T) {
	fb := &fakeBrowser{}
	r := newTestRunner(t, fb)
	flow, err := ForestFlow(ForestParams{Page: filepath.Join(t.TempDir(), "nope.html")})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Run(t.Context(), flow)
	if !errors.Is(err, ErrTargetMissing) {
		t.Fatalf("expected ErrTargetMissing, got %v", err)
	}
	if res == nil || !errors.Is(res.Err, ErrTargetMissing) {
		t.Errorf("result does not carry the error: %+v", res)
	}
	if fb.launches.Load() != 0 {
		t.Error("browser launched despite failed preflight")
	}
	if files := pngFiles(t, r.OutputDir); len(files) != 0 {
		t.Errorf("expected no screenshots, got %v", files)
	}
}

func TestRunMenuFlowOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	fb := &fakeBrowser{}
	r := newTestRunner(t, fb)
	flow, err := MenuFlow(MenuParams{URL: srv.URL + "/index.html"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Run(t.Context(), flow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{MainMenuShot, GameShot, ClassSelectionShot}
	if len(res.Checkpoints) != len(want) {
		t.Fatalf("expected %d checkpoints, got %d", len(want), len(res.Checkpoints))
	}
	for i, name := range want {
		cp := res.Checkpoints[i]
		if filepath.Base(cp.Path) != name {
			t.Errorf("checkpoint %d: expected %s, got %s", i, name, cp.Path)
		}
		data, err := os.ReadFile(cp.Path)
		if err != nil {
			t.Fatal(err)
		}
		if want := fmt.Sprintf("\x89PNG shot %d", i+1); string(data) != want {
			t.Errorf("checkpoint %d: content %q, want %q", i, data, want)
		}
	}
	if !fb.closed() {
		t.Error("browser was not closed")
	}
}

func TestRunMenuFlowServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/index.html"
	srv.Close()

	fb := &fakeBrowser{}
	r := newTestRunner(t, fb)
	flow, err := MenuFlow(MenuParams{URL: url, ServerWait: 300 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Run(t.Context(), flow)
	if !errors.Is(err, ErrServerUnreachable) {
		t.Fatalf("expected ErrServerUnreachable, got %v", err)
	}
	if fb.launches.Load() != 0 {
		t.Error("browser launched for an unreachable server")
	}
	if files := pngFiles(t, r.OutputDir); len(files) != 0 {
		t.Errorf("expected no screenshots, got %v", files)
	}
}

func TestRunStepFailureAborts(t *testing.T) {
	// Batch 1 opens the menu, batch 2 clicks the daily button.
	fb := &fakeBrowser{failAt: 2}
	r := newTestRunner(t, fb)
	flow := Flow{
		Name: MenuFlowName,
		Steps: []Step{
			{Name: "open main menu", Actions: []chromedp.Action{chromedp.Navigate("about:blank")}},
			{Name: "capture main menu", Checkpoint: MainMenuShot},
			{Name: "start daily run", Actions: []chromedp.Action{Click(DailyButton)}},
			{Name: "capture game", Checkpoint: GameShot},
		},
	}

	res, err := r.Run(t.Context(), flow)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("expected ErrStepFailed, got %v", err)
	}
	if len(res.Checkpoints) != 1 {
		t.Errorf("expected only the main menu checkpoint, got %+v", res.Checkpoints)
	}
	if _, err := os.Stat(filepath.Join(r.OutputDir, MainMenuShot)); err != nil {
		t.Errorf("main menu screenshot missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.OutputDir, GameShot)); !os.IsNotExist(err) {
		t.Errorf("game screenshot should not exist, stat err = %v", err)
	}
	if !fb.closed() {
		t.Error("browser was not closed after failure")
	}
}

func TestRunStepTimeout(t *testing.T) {
	fb := &fakeBrowser{block: true}
	r := newTestRunner(t, fb)
	r.StepTimeout = 50 * time.Millisecond
	flow := Flow{
		Name: "wait",
		Steps: []Step{
			{Name: "wait for canvas", Actions: []chromedp.Action{WaitExists(GameCanvas)}},
			{Name: "capture game", Checkpoint: GameShot},
		},
	}

	_, err := r.Run(t.Context(), flow)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if fb.shots.Load() != 0 {
		t.Error("screenshot taken after a timed out step")
	}
	if files := pngFiles(t, r.OutputDir); len(files) != 0 {
		t.Errorf("expected no screenshots, got %v", files)
	}
}

func TestRunCanceledByRunContext(t *testing.T) {
	fb := &fakeBrowser{block: true}
	r := newTestRunner(t, fb)
	r.StepTimeout = 10 * time.Second
	flow := Flow{
		Name: "wait",
		Steps: []Step{
			{Name: "wait for canvas", Actions: []chromedp.Action{WaitExists(GameCanvas)}},
			{Name: "capture game", Checkpoint: GameShot},
		},
	}

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := r.Run(ctx, flow)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !errors.Is(err, ErrStepFailed) {
		t.Errorf("expected ErrStepFailed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("run took %v, the step timeout was not preempted", elapsed)
	}
	if !fb.closed() {
		t.Error("browser not closed after the run was canceled")
	}
	if fb.shots.Load() != 0 {
		t.Error("screenshot taken after cancellation")
	}
	if files := pngFiles(t, r.OutputDir); len(files) != 0 {
		t.Errorf("expected no screenshots, got %v", files)
	}
}

func TestRunOverwritesScreenshots(t *testing.T) {
	page := writeForestPage(t)
	out := t.TempDir()
	flow, err := ForestFlow(ForestParams{Page: page})
	if err != nil {
		t.Fatal(err)
	}

	var last []byte
	for i := 0; i < 2; i++ {
		fb := &fakeBrowser{}
		fb.shots.Store(int32(i * 10))
		r := &Runner{OutputDir: out, launch: fb.launch}
		if _, err := r.Run(t.Context(), flow); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		last = []byte(fmt.Sprintf("\x89PNG shot %d", i*10+1))
	}

	data, err := os.ReadFile(filepath.Join(out, ForestShot))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, last) {
		t.Errorf("screenshot not overwritten: %q", data)
	}
	if files := pngFiles(t, out); len(files) != 1 {
		t.Errorf("expected exactly one file, got %v", files)
	}
}

func TestRunLaunchFailure(t *testing.T) {
	r := &Runner{
		OutputDir: t.TempDir(),
		launch: func(context.Context, BrowserOptions) (*Session, error) {
			return nil, errors.New("exec: \"google-chrome\": executable file not found in $PATH")
		},
	}
	flow, err := ForestFlow(ForestParams{Page: writeForestPage(t)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(t.Context(), flow); err == nil {
		t.Fatal("expected launch error")
	}
	if files := pngFiles(t, r.OutputDir); len(files) != 0 {
		t.Errorf("expected no screenshots, got %v", files)
	}
}

func TestRunDebugCapture(t *testing.T) {
	fb := &fakeBrowser{failAt: 1}
	r := newTestRunner(t, fb)
	r.DebugDir = t.TempDir()
	flow := Flow{
		Name:  "debug",
		Steps: []Step{{Name: "click", Actions: []chromedp.Action{Click(DailyButton)}}},
	}

	if _, err := r.Run(t.Context(), flow); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := os.Stat(filepath.Join(r.DebugDir, "debug-00-click.png")); err != nil {
		t.Errorf("debug screenshot missing: %v", err)
	}
	if files := pngFiles(t, r.OutputDir); len(files) != 0 {
		t.Errorf("debug output leaked into output dir: %v", files)
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	fb := &fakeBrowser{}
	s, err := fb.launch(t.Context(), BrowserOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !fb.closed() {
		t.Error("session context still live")
	}
}
