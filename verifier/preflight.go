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
	"log"
	"net/http"
	"os"
	"time"
)

// CheckFile fails with ErrTargetMissing unless path is a regular file.
func CheckFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrTargetMissing, path)
		}
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrTargetMissing, path)
	}
	return nil
}

// WaitForServer polls url until it answers 200 or timeout elapses.
func WaitForServer(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := http.Client{Timeout: time.Second}
	var lastErr error
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				log.Printf("Server at %s is ready!", url)
				return nil
			}
			err = fmt.Errorf("status %s", resp.Status)
		}
		lastErr = err
		log.Printf("waitForServer(%q): %v", url, err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrServerUnreachable, url, lastErr)
		case <-time.After(250 * time.Millisecond):
		}
	}
}
