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
	"fmt"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// Manifest renders r as stable text, one line per fact. Timing is left
// out so two identical runs produce identical manifests.
func (r *Record) Manifest() string {
	var b strings.Builder
	fmt.Fprintf(&b, "flow: %s\n", r.Flow)
	fmt.Fprintf(&b, "status: %s\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", r.Error)
	}
	for _, cp := range r.Checkpoints {
		fmt.Fprintf(&b, "checkpoint %s: %s %d bytes sha256:%s\n", cp.Step, cp.Path, cp.Size, cp.SHA256)
	}
	return b.String()
}

// Diff returns a unified diff of the manifests of a and b. It is empty
// when the runs captured the same images with the same outcome.
func Diff(a, b *Record) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a.Manifest()),
		B:        difflib.SplitLines(b.Manifest()),
		FromFile: fmt.Sprintf("run %s (%s)", shortID(a.ID), time.Unix(0, a.StartedAt).UTC().Format(time.RFC3339)),
		ToFile:   fmt.Sprintf("run %s (%s)", shortID(b.ID), time.Unix(0, b.StartedAt).UTC().Format(time.RFC3339)),
		Context:  3,
	})
}

// Changed reports the steps whose screenshot differs from prev, including
// steps prev never reached.
func Changed(prev, cur *Record) []string {
	old := make(map[string]string, len(prev.Checkpoints))
	for _, cp := range prev.Checkpoints {
		old[cp.Step] = cp.SHA256
	}
	var out []string
	for _, cp := range cur.Checkpoints {
		if old[cp.Step] != cp.SHA256 {
			out = append(out, cp.Step)
		}
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
