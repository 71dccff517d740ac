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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
)

// Viewport is the emulated screen size.
type Viewport struct {
	Width  int64 `yaml:"width"`
	Height int64 `yaml:"height"`
}

// MobileViewport matches a small phone in portrait.
var MobileViewport = Viewport{Width: 375, Height: 667}

// OpenPage navigates to target, emulating vp first when it is set.
func OpenPage(target string, vp *Viewport) chromedp.Tasks {
	var tasks chromedp.Tasks
	if vp != nil {
		tasks = append(tasks, chromedp.EmulateViewport(vp.Width, vp.Height))
	}
	return append(tasks, chromedp.Navigate(target))
}

// ForceDisplay sets the CSS display of the element with the given id.
// The script throws when the element is missing, which fails the step.
func ForceDisplay(id, display string) chromedp.Action {
	return chromedp.Evaluate(fmt.Sprintf(`
		(() => {
			const el = document.getElementById(%q);
			if (!el) throw new Error("ForceDisplay: element not found: " + %q);
			el.style.display = %q;
		})()
	`, id, id, display), nil)
}

// Click clicks the first element matching a CSS selector.
func Click(sel string) chromedp.Action {
	return chromedp.Click(sel, chromedp.ByQuery)
}

// WaitExists blocks until an element matching sel is in the DOM.
func WaitExists(sel string) chromedp.Action {
	return chromedp.WaitReady(sel, chromedp.ByQuery)
}

// FileURL turns a local path into a file:// URL.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// writeScreenshot saves buf to filename, replacing any previous file.
func writeScreenshot(filename string, buf []byte) (Checkpoint, error) {
	if len(buf) == 0 {
		return Checkpoint{}, fmt.Errorf("empty screenshot for %s", filename)
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Checkpoint{}, fmt.Errorf("failed to create directory for screenshot: %w", err)
		}
	}
	// An interrupted write must never leave a truncated PNG behind.
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to write screenshot to file: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return Checkpoint{}, fmt.Errorf("failed to write screenshot to file: %w", err)
	}
	log.Printf("Saved screenshot to %s", filename)

	sum := sha256.Sum256(buf)
	return Checkpoint{
		Path:   filename,
		Size:   int64(len(buf)),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}
