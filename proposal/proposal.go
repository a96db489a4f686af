// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package proposal tracks model-generated changes as addressable, stateful
// units with a bounded concurrent stack and a canonical undo record.
package proposal

import (
	"time"

	"github.com/lanternworks/drydock/diffapply"
)

// =============================================================================
// Status and Kind
// =============================================================================

// Status is a proposal's lifecycle state.
type Status string

const (
	// StatusPending means generated but not yet applied or discarded.
	StatusPending Status = "pending"

	// StatusApplied means the user confirmed and writes happened.
	StatusApplied Status = "applied"

	// StatusDiscarded means the user cancelled before applying.
	StatusDiscarded Status = "discarded"

	// StatusSuperseded is reserved for conflict resolution between proposals
	// touching overlapping files. No code path assigns it; external drift is
	// surfaced through the ConflictHook instead.
	StatusSuperseded Status = "superseded"
)

// Kind distinguishes single-file from multi-file proposals.
type Kind string

const (
	KindSingle Kind = "single"
	KindMulti  Kind = "multi"
)

// =============================================================================
// Entries
// =============================================================================

// FileChange is one file's proposed change inside a proposal.
type FileChange struct {
	// Path is the workspace-relative target.
	Path string `json:"path"`

	// Original is the file content the proposal was generated against.
	Original string `json:"original"`

	// Proposed is the full replacement content. Empty plus Delete unset
	// means the file becomes empty, which triggers the data-loss guard for
	// existing files.
	Proposed string `json:"proposed"`

	// Delete marks the file for removal instead of replacement.
	Delete bool `json:"delete,omitempty"`

	// Include controls whether this file participates in apply.
	Include bool `json:"include"`
}

// Entry is one addressable proposal.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	FileCount int       `json:"fileCount"`
	CreatedAt time.Time `json:"createdAt"`
	Status    Status    `json:"status"`

	// Prompt and Explanation preserve the generator exchange for history.
	Prompt      string `json:"prompt,omitempty"`
	Explanation string `json:"explanation,omitempty"`

	// PatchText is the raw diff when the proposal came from the diff path.
	PatchText string `json:"patchText,omitempty"`

	// Changes carry the per-file payload.
	Changes []FileChange `json:"changes"`

	// Snapshot is the undo record once the entry is applied.
	Snapshot *ApplySnapshot `json:"snapshot,omitempty"`
}

// IncludedChanges returns the changes whose inclusion flag is set.
func (e *Entry) IncludedChanges() []FileChange {
	var out []FileChange
	for _, c := range e.Changes {
		if c.Include {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// Undo Record
// =============================================================================

// ApplySnapshot is the canonical undo record for an applied proposal.
//
// # Description
//
// Each change is a diffapply.FileSnapshot: Existed true means revert
// restores PreviousContent verbatim; Existed false means the apply created
// the file and revert deletes it. There is exactly one undo mechanism; the
// restore-vs-delete distinction lives in the per-file flag.
type ApplySnapshot struct {
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"createdAt"`
	Root      string                   `json:"root"`
	Changes   []diffapply.FileSnapshot `json:"changes"`
}

// TouchedPaths returns the paths recorded in the snapshot.
func (s *ApplySnapshot) TouchedPaths() []string {
	out := make([]string, 0, len(s.Changes))
	for _, c := range s.Changes {
		out = append(out, c.Path)
	}
	return out
}
