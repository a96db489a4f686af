// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history persists a per-workspace log of mutation events.
//
// # Description
//
// Every apply, revert, and verification run is recorded so a session can be
// reconstructed after restart. Storage is a bounded in-memory slice with
// JSON persistence under the workspace's .drydock directory; no external
// database.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a history event.
type EventKind string

const (
	EventApply  EventKind = "apply"
	EventRevert EventKind = "revert"
	EventVerify EventKind = "verify"
	EventRepair EventKind = "repair"
)

// Event is one recorded mutation or verification.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`

	// ProposalID links the event to a proposal when one was involved.
	ProposalID string `json:"proposalId,omitempty"`

	// Paths are the workspace-relative files the event touched.
	Paths []string `json:"paths,omitempty"`

	// Success is false for aborted applies and failed verification runs.
	Success bool `json:"success"`

	// Detail is a short human-readable summary.
	Detail string `json:"detail,omitempty"`
}

// StoreOptions configures the history store.
type StoreOptions struct {
	// MaxEntries bounds the in-memory log. Default 1000; oldest entries are
	// dropped first.
	MaxEntries int

	// PersistPath is the JSON file location. Empty means memory-only.
	PersistPath string
}

// DefaultStoreOptions returns sensible defaults with persistence under the
// given workspace root.
func DefaultStoreOptions(root string) StoreOptions {
	return StoreOptions{
		MaxEntries:  1000,
		PersistPath: filepath.Join(root, ".drydock", "history.json"),
	}
}

// Store is the bounded, persisted event log.
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	events     []Event // oldest first
	maxEntries int
	path       string
}

// NewStore creates a store and loads any persisted log.
//
// # Outputs
//
//   - *Store: Ready-to-use store; a corrupt or missing persisted file starts
//     the log fresh rather than failing construction.
func NewStore(opts StoreOptions) *Store {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	s := &Store{
		maxEntries: opts.MaxEntries,
		path:       opts.PersistPath,
	}
	s.loadPersisted()
	return s
}

func (s *Store) loadPersisted() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return
	}
	if len(events) > s.maxEntries {
		events = events[len(events)-s.maxEntries:]
	}
	s.events = events
}

// Record appends an event, assigning id and timestamp when unset, and
// persists the log.
func (s *Store) Record(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	if len(s.events) > s.maxEntries {
		s.events = s.events[len(s.events)-s.maxEntries:]
	}
	s.mu.Unlock()

	// Persistence failure never blocks the mutation path.
	_ = s.Persist()
	return event
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]Event, 0, limit)
	for i := len(s.events) - 1; i >= len(s.events)-limit; i-- {
		out = append(out, s.events[i])
	}
	return out
}

// ForProposal returns every event referencing the proposal, oldest first.
func (s *Store) ForProposal(proposalID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.ProposalID == proposalID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the current event count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Persist writes the log to disk via a temp-file rename.
func (s *Store) Persist() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s.events, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
