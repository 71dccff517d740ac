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

// Package runlog keeps a history of verification runs on disk.
package runlog

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
	"github.com/google/uuid"
)

const (
	StatusPassed = "passed"
	StatusFailed = "failed"

	runsDir = "runs"
)

// ErrAmbiguous is returned when an ID prefix matches more than one run.
var ErrAmbiguous = errors.New("ambiguous run id")

// Checkpoint is one screenshot taken during a run.
type Checkpoint struct {
	Step   string `json:"step"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Record is the persisted summary of a run.
type Record struct {
	ID          string       `json:"id"`
	Flow        string       `json:"flow"`
	Status      string       `json:"status"`
	Error       string       `json:"error,omitempty"`
	StartedAt   int64        `json:"startedAt"`
	FinishedAt  int64        `json:"finishedAt"`
	Checkpoints []Checkpoint `json:"checkpoints,omitempty"`
}

// NewRecord returns a record with a fresh ID.
func NewRecord(flow string) *Record {
	return &Record{
		ID:   uuid.NewString(),
		Flow: flow,
	}
}

// Duration is the wall time of the run.
func (r *Record) Duration() time.Duration {
	return time.Duration(r.FinishedAt - r.StartedAt)
}

// Store persists records under <dataDir>/runs.
type Store struct {
	DataDir string
	storage *storage.Storage
	mu      sync.RWMutex
}

// NewStore creates a new Store.
func NewStore(dataDir string, s *storage.Storage) *Store {
	return &Store{
		DataDir: dataDir,
		storage: s,
	}
}

// Open prepares dataDir and returns a Store. When passphrase is set the
// records are encrypted with a master key kept in dataDir/master.key,
// created on first use. A store that has a master key refuses to open
// without the passphrase.
func Open(dataDir, passphrase string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, runsDir), 0755); err != nil {
		return nil, fmt.Errorf("runlog: %w", err)
	}
	keyFile := filepath.Join(dataDir, "master.key")

	var masterKey crypto.MasterKey
	if passphrase != "" {
		var err error
		masterKey, err = crypto.ReadMasterKey([]byte(passphrase), keyFile)
		if err != nil {
			if !os.IsNotExist(err) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("runlog: read master key: %w", err)
			}
			log.Println("Initializing new master encryption key...")
			if masterKey, err = crypto.CreateMasterKey(); err != nil {
				return nil, fmt.Errorf("runlog: create master key: %w", err)
			}
			if err := masterKey.Save([]byte(passphrase), keyFile); err != nil {
				return nil, fmt.Errorf("runlog: save master key: %w", err)
			}
		}
	} else if _, err := os.Stat(keyFile); err == nil {
		return nil, fmt.Errorf("runlog: %s exists but no passphrase was given", keyFile)
	}

	s := storage.New(dataDir, masterKey)
	return NewStore(dataDir, s), nil
}

func recordFile(id string) string {
	return filepath.Join(runsDir, fmt.Sprintf("%s.json", url.PathEscape(id)))
}

// Save writes r, replacing any record with the same ID.
func (s *Store) Save(r *Record) error {
	if r.ID == "" {
		return errors.New("runlog: record has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.SaveDataFile(recordFile(r.ID), r); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

// Load reads the record with the exact ID.
func (s *Store) Load(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var r Record
	if err := s.storage.ReadDataFile(recordFile(id), &r); err != nil {
		if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	return &r, nil
}

func (s *Store) ids() ([]string, error) {
	files, err := os.ReadDir(filepath.Join(s.DataDir, runsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Resolve expands an ID prefix to a full run ID.
func (s *Store) Resolve(prefix string) (string, error) {
	ids, err := s.ids()
	if err != nil {
		return "", err
	}
	if slices.Contains(ids, prefix) {
		return prefix, nil
	}
	var match string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
			}
			match = id
		}
	}
	if match == "" {
		return "", os.ErrNotExist
	}
	return match, nil
}

// List returns records newest first. An empty flow matches all flows.
// Unreadable records are logged and skipped.
func (s *Store) List(flow string) ([]*Record, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, id := range ids {
		r, err := s.Load(id)
		if err != nil {
			log.Printf("Runlog Warning: failed to load run %s: %v", id, err)
			continue
		}
		if flow != "" && r.Flow != flow {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Record) int {
		if a.StartedAt != b.StartedAt {
			if a.StartedAt > b.StartedAt {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Latest returns the newest record for flow, or os.ErrNotExist.
func (s *Store) Latest(flow string) (*Record, error) {
	runs, err := s.List(flow)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, os.ErrNotExist
	}
	return runs[0], nil
}
