// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	qderr "querydeck/cli/internal/errors"
	"querydeck/cli/internal/presto"
	"querydeck/cli/internal/xdg"
)

// stateFile is the session state document name inside the XDG state dir.
const stateFile = "session.json"

// State is the persisted session document:
// {"tabs": [[id, snapshot], ...], "activeTabId": ..., "resultCounter": N}.
// It is written on every state-affecting mutation and read once at startup.
type State struct {
	Tabs          []TabEntry `json:"tabs"`
	ActiveTabID   string     `json:"activeTabId,omitempty"`
	ResultCounter uint64     `json:"resultCounter"`
}

// TabSnapshot is the durable subset of a Tab.
type TabSnapshot struct {
	Title      string          `json:"title"`
	Query      string          `json:"query"`
	Status     Status          `json:"status"`
	Columns    []presto.Column `json:"columns,omitempty"`
	Rows       [][]any         `json:"rows,omitempty"`
	Truncated  bool            `json:"truncated,omitempty"`
	Warning    string          `json:"warning,omitempty"`
	SourceURI  string          `json:"sourceUri,omitempty"`
	ErrMessage string          `json:"errMessage,omitempty"`
}

// TabEntry pairs a tab id with its snapshot. On the wire it is the two-element
// array [id, snapshot], preserving tab insertion order.
type TabEntry struct {
	ID       string
	Snapshot TabSnapshot
}

func (e TabEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.ID, e.Snapshot})
}

func (e *TabEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("tab entry must be [id, snapshot], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.ID); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &e.Snapshot)
}

// Store reads and writes the session state document.
type Store struct {
	path string
}

// NewStore places the session file in the XDG state directory.
func NewStore() (*Store, error) {
	dir, err := xdg.StateDir()
	if err != nil {
		return nil, qderr.Wrap(qderr.PersistenceFailed, "cannot resolve state directory", err)
	}
	return &Store{path: filepath.Join(dir, stateFile)}, nil
}

// NewStoreAt places the session file at an explicit path.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted state. A missing file is a normal first run and
// yields an empty state with no error; an unreadable or unparseable file is
// reported so the caller can log it, also with an empty state.
func (s *Store) Load() (State, error) {
	var st State
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return State{}, qderr.Wrap(qderr.PersistenceFailed, "cannot read session state", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, qderr.Wrap(qderr.PersistenceFailed, "session state is corrupt", err)
	}
	return st, nil
}

// Save writes the state atomically (write to temp file, then rename) with
// 0600 permissions, so a crash mid-write never corrupts the previous state.
func (s *Store) Save(st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return qderr.Wrap(qderr.PersistenceFailed, "cannot encode session state", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return qderr.Wrap(qderr.PersistenceFailed, "cannot write session state", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return qderr.Wrap(qderr.PersistenceFailed, "cannot replace session state", err)
	}
	return nil
}
