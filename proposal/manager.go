// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanternworks/drydock/diffapply"
	"github.com/lanternworks/drydock/workspace"
)

// MaxEntries bounds the concurrent proposal stack.
const MaxEntries = 5

// ErrCapacity is returned when the stack is full and the caller declined
// eviction. The new proposal is not admitted and nothing is touched.
var ErrCapacity = errors.New("proposal stack is full and eviction was declined")

// ErrNotFound is returned when no entry has the requested id.
var ErrNotFound = errors.New("proposal not found")

// ErrDataLossDeclined is returned when the caller declined to empty an
// existing file during a multi-file apply.
var ErrDataLossDeclined = errors.New("data-loss confirmation declined")

// ConfirmFunc answers a yes/no question about a proposal or file. Used for
// eviction and data-loss confirmations; a nil func means "declined".
type ConfirmFunc func(subject string) bool

// ConflictHook receives external-drift notifications for files referenced by
// pending proposals. The baseline behavior is no conflict detection; the
// hook only observes and never changes entry status.
type ConflictHook func(entryID, path string)

// Manager owns the bounded proposal stack for one workspace.
//
// # Thread Safety
//
// Safe for concurrent use. Apply and revert calls against the same root are
// additionally serialized by the engine layer; the manager's lock protects
// stack bookkeeping only.
type Manager struct {
	ws     *workspace.Workspace
	logger *slog.Logger

	mu      sync.Mutex
	entries []*Entry // oldest first
	active  string
	hook    ConflictHook
}

// NewManager creates a proposal manager over the given workspace.
func NewManager(ws *workspace.Workspace, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{ws: ws, logger: logger}
}

// SetConflictHook installs the external-drift observer. Pass nil to disable.
func (m *Manager) SetConflictHook(hook ConflictHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// NotifyExternalChange reports that a file changed outside the engine. Every
// pending entry referencing the path is forwarded to the conflict hook.
func (m *Manager) NotifyExternalChange(path string) {
	m.mu.Lock()
	hook := m.hook
	var hits []string
	if hook != nil {
		for _, e := range m.entries {
			if e.Status != StatusPending {
				continue
			}
			for _, c := range e.Changes {
				if c.Path == path {
					hits = append(hits, e.ID)
					break
				}
			}
		}
	}
	m.mu.Unlock()

	for _, id := range hits {
		hook(id, path)
	}
}

// =============================================================================
// Stack Discipline
// =============================================================================

// Admit adds a new pending entry to the stack and makes it active.
//
// # Description
//
// When five entries already exist, the oldest pending entry is the eviction
// candidate (preferring to drop not-yet-applied work); if none are pending,
// the oldest entry overall is. confirmEvict is asked before the victim is
// dropped; declining returns ErrCapacity and nothing changes. Evicted
// pending entries are marked discarded on the way out.
func (m *Manager) Admit(entry *Entry, confirmEvict ConfirmFunc) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.Status = StatusPending
	entry.FileCount = len(entry.Changes)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) >= MaxEntries {
		victim := m.evictionCandidateLocked()
		if confirmEvict == nil || !confirmEvict(victim.ID) {
			return ErrCapacity
		}
		if victim.Status == StatusPending {
			victim.Status = StatusDiscarded
		}
		m.removeLocked(victim.ID)
		m.logger.Info("proposal evicted", "id", victim.ID, "status", string(victim.Status))
	}

	m.entries = append(m.entries, entry)
	m.active = entry.ID
	m.logger.Info("proposal admitted", "id", entry.ID, "files", entry.FileCount)
	return nil
}

// evictionCandidateLocked picks the oldest pending entry, falling back to
// the oldest entry of any status.
func (m *Manager) evictionCandidateLocked() *Entry {
	for _, e := range m.entries {
		if e.Status == StatusPending {
			return e
		}
	}
	return m.entries[0]
}

func (m *Manager) removeLocked(id string) {
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	if m.active == id {
		m.active = ""
	}
}

// Get returns the entry with the given id.
func (m *Manager) Get(id string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns the stack oldest-first.
func (m *Manager) List() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// SetActive selects which proposal is visible for review and apply.
// Switching the active proposal does not change any entry's status.
func (m *Manager) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			m.active = id
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Active returns the currently selected entry, or nil when none is active.
func (m *Manager) Active() *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == m.active {
			return e
		}
	}
	return nil
}

// Discard cancels a pending proposal.
func (m *Manager) Discard(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			if e.Status != StatusPending {
				return fmt.Errorf("proposal %s is %s, only pending proposals can be discarded", id, e.Status)
			}
			e.Status = StatusDiscarded
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// =============================================================================
// Apply and Revert
// =============================================================================

// Apply writes a proposal's included files and captures the undo record.
//
// # Description
//
// Only files whose inclusion flag is set are written. An existing, non-empty
// file proposed to become empty requires confirmDataLoss to approve it
// before anything in the batch is written. The first write failure aborts
// the remainder immediately; files written before the failing one remain
// written, and the snapshot captured so far is kept on the entry so a
// partial apply stays revertible. A retried apply reuses that snapshot and
// records before-state only for paths it has not captured yet, so the
// original content of already-written files survives the retry.
func (m *Manager) Apply(ctx context.Context, id string, confirmDataLoss ConfirmFunc) (*ApplySnapshot, error) {
	entry, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if entry.Status != StatusPending {
		status := entry.Status
		m.mu.Unlock()
		return nil, fmt.Errorf("proposal %s is %s, only pending proposals can be applied", id, status)
	}
	snapshot := entry.Snapshot
	m.mu.Unlock()

	included := entry.IncludedChanges()
	if len(included) == 0 {
		return nil, fmt.Errorf("proposal %s has no included files", id)
	}

	// Data-loss guard runs up front so a declined confirmation aborts
	// before any write.
	for _, c := range included {
		if c.Delete || c.Proposed != "" {
			continue
		}
		current, err := m.ws.ReadFileOrEmpty(c.Path)
		if err != nil {
			return nil, err
		}
		if current != "" {
			if confirmDataLoss == nil || !confirmDataLoss(c.Path) {
				return nil, fmt.Errorf("%w: %s", ErrDataLossDeclined, c.Path)
			}
		}
	}

	if snapshot == nil {
		snapshot = &ApplySnapshot{
			ID:        uuid.NewString(),
			CreatedAt: time.Now(),
			Root:      m.ws.Root(),
		}
	}
	recorded := make(map[string]bool, len(snapshot.Changes))
	for _, s := range snapshot.Changes {
		recorded[s.Path] = true
	}

	for _, c := range included {
		if err := ctx.Err(); err != nil {
			m.storeSnapshot(entry, snapshot)
			return snapshot, err
		}

		// A path recorded by an earlier partial apply keeps its original
		// before-state; re-reading it here would capture that apply's
		// output and poison the undo record.
		if !recorded[c.Path] {
			existed, err := m.ws.Exists(c.Path)
			if err != nil {
				m.storeSnapshot(entry, snapshot)
				return snapshot, fmt.Errorf("apply %s: %w", c.Path, err)
			}
			before, err := m.ws.ReadFileOrEmpty(c.Path)
			if err != nil {
				m.storeSnapshot(entry, snapshot)
				return snapshot, fmt.Errorf("apply %s: %w", c.Path, err)
			}
			snapshot.Changes = append(snapshot.Changes, diffapply.FileSnapshot{
				Path:    c.Path,
				Content: before,
				Existed: existed,
			})
			recorded[c.Path] = true
		}

		var writeErr error
		if c.Delete {
			writeErr = m.ws.DeleteFile(c.Path)
		} else {
			writeErr = m.ws.WriteFile(c.Path, c.Proposed)
		}
		if writeErr != nil {
			m.storeSnapshot(entry, snapshot)
			m.logger.Error("proposal apply aborted", "id", id, "path", c.Path, "error", writeErr.Error())
			return snapshot, fmt.Errorf("apply %s: %w", c.Path, writeErr)
		}
	}

	m.mu.Lock()
	entry.Status = StatusApplied
	entry.Snapshot = snapshot
	m.mu.Unlock()

	m.logger.Info("proposal applied", "id", id, "files", len(snapshot.Changes))
	return snapshot, nil
}

// storeSnapshot attaches a (possibly partial) snapshot to the entry under
// the stack lock.
func (m *Manager) storeSnapshot(entry *Entry, snap *ApplySnapshot) {
	m.mu.Lock()
	entry.Snapshot = snap
	m.mu.Unlock()
}

// Revert undoes an applied proposal using its snapshot and clears the entry
// from the stack. The ApplySnapshot remains valid as an undo handle for
// history.
func (m *Manager) Revert(id string) (*ApplySnapshot, *diffapply.RevertOutcome, error) {
	entry, err := m.Get(id)
	if err != nil {
		return nil, nil, err
	}
	m.mu.Lock()
	snapshot := entry.Snapshot
	if entry.Status != StatusApplied || snapshot == nil {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("proposal %s is not applied", id)
	}
	m.mu.Unlock()

	outcome := &diffapply.RevertOutcome{}
	for _, snap := range snapshot.Changes {
		var restoreErr error
		if snap.Existed {
			restoreErr = m.ws.WriteFile(snap.Path, snap.Content)
		} else {
			restoreErr = m.ws.DeleteFile(snap.Path)
		}
		if restoreErr != nil {
			outcome.Failed = append(outcome.Failed, diffapply.FileFailure{
				Path: snap.Path, Error: restoreErr.Error(),
			})
			continue
		}
		outcome.Applied = append(outcome.Applied, snap.Path)
	}

	m.mu.Lock()
	m.removeLocked(id)
	m.mu.Unlock()

	m.logger.Info("proposal reverted",
		"id", id,
		"restored", len(outcome.Applied),
		"failed", len(outcome.Failed),
	)
	return snapshot, outcome, nil
}
