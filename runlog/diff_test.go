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

package runlog

import (
	"slices"
	"strings"
	"testing"
)

func TestDiffIdenticalRuns(t *testing.T) {
	a := forestRecord(100, "aaaa")
	b := forestRecord(200, "aaaa")
	diff, err := Diff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff != "" {
		t.Errorf("expected empty diff, got:\n%s", diff)
	}
}

func TestDiffChangedScreenshot(t *testing.T) {
	a := forestRecord(100, "aaaa")
	b := forestRecord(200, "bbbb")
	diff, err := Diff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diff, "-checkpoint capture forest: verification_forest.png 1234 bytes sha256:aaaa") {
		t.Errorf("diff missing removed line:\n%s", diff)
	}
	if !strings.Contains(diff, "+checkpoint capture forest: verification_forest.png 1234 bytes sha256:bbbb") {
		t.Errorf("diff missing added line:\n%s", diff)
	}
	if !strings.Contains(diff, "--- run "+a.ID[:8]) {
		t.Errorf("diff header missing run id:\n%s", diff)
	}
}

func TestDiffFailedRun(t *testing.T) {
	a := forestRecord(100, "aaaa")
	b := forestRecord(200, "aaaa")
	b.Status = StatusFailed
	b.Error = "forest: step failed: reveal skill buttons: node not found"
	b.Checkpoints = nil

	diff, err := Diff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"-status: passed", "+status: failed", "+error: forest: step failed"} {
		if !strings.Contains(diff, want) {
			t.Errorf("diff missing %q:\n%s", want, diff)
		}
	}
}

func TestChanged(t *testing.T) {
	prev := &Record{Checkpoints: []Checkpoint{
		{Step: "capture main menu", SHA256: "1"},
		{Step: "capture game", SHA256: "2"},
	}}
	cur := &Record{Checkpoints: []Checkpoint{
		{Step: "capture main menu", SHA256: "1"},
		{Step: "capture game", SHA256: "22"},
		{Step: "capture class selection", SHA256: "3"},
	}}
	got := Changed(prev, cur)
	want := []string{"capture game", "capture class selection"}
	if !slices.Equal(got, want) {
		t.Errorf("Changed = %v, want %v", got, want)
	}
}
