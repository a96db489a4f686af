// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package plan applies ordered, deterministic per-file edit steps.
//
// # Description
//
// The step model is the non-diff mutation path. Unified diffs are brittle
// against any drift in the base text; a structured plan describes intent
// (replace these lines, insert at the start) and gives a natural per-step
// progress and failure boundary. A failing step halts the remaining
// sequence; snapshots captured for completed steps remain valid for revert.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Operations
// =============================================================================

// OpKind discriminates edit operation variants.
type OpKind string

const (
	// OpReplaceRange substitutes a 1-based inclusive line range.
	OpReplaceRange OpKind = "replace_range"

	// OpSearchReplace replaces an exact substring match.
	OpSearchReplace OpKind = "search_and_replace"

	// OpAppend concatenates text at the end of the file.
	OpAppend OpKind = "append"

	// OpPrepend concatenates text at the start of the file.
	OpPrepend OpKind = "prepend"
)

// Operation is one pure text transform. Fields are interpreted per Kind;
// operations have no filesystem awareness.
type Operation struct {
	Kind OpKind `json:"kind"`

	// StartLine/EndLine bound a replace_range (1-based, inclusive).
	StartLine int `json:"startLine,omitempty"`
	EndLine   int `json:"endLine,omitempty"`

	// Search/Replace drive search_and_replace. All controls whether every
	// occurrence is replaced or only the first.
	Search  string `json:"search,omitempty"`
	Replace string `json:"replace,omitempty"`
	All     bool   `json:"all,omitempty"`

	// NewText is the payload for replace_range, append, and prepend.
	NewText string `json:"newText,omitempty"`
}

// OperationError reports an operation whose precondition failed against the
// current content. A plan referencing stale content halts instead of
// silently doing nothing.
type OperationError struct {
	Kind   OpKind
	Reason string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Apply runs the operation against content and returns the new content.
func (op Operation) Apply(content string) (string, error) {
	switch op.Kind {
	case OpReplaceRange:
		return applyReplaceRange(content, op.StartLine, op.EndLine, op.NewText)
	case OpSearchReplace:
		return applySearchReplace(content, op.Search, op.Replace, op.All)
	case OpAppend:
		if content == "" {
			return op.NewText, nil
		}
		return content + "\n" + op.NewText, nil
	case OpPrepend:
		if content == "" {
			return op.NewText, nil
		}
		return op.NewText + "\n" + content, nil
	default:
		return "", &OperationError{Kind: op.Kind, Reason: "unknown operation kind"}
	}
}

func applyReplaceRange(content string, start, end int, newText string) (string, error) {
	if start < 1 || end < start {
		return "", &OperationError{
			Kind:   OpReplaceRange,
			Reason: fmt.Sprintf("invalid range %d..%d", start, end),
		}
	}
	lines := strings.Split(content, "\n")
	if end > len(lines) {
		return "", &OperationError{
			Kind:   OpReplaceRange,
			Reason: fmt.Sprintf("range %d..%d exceeds %d lines", start, end, len(lines)),
		}
	}
	var out []string
	out = append(out, lines[:start-1]...)
	if newText != "" {
		out = append(out, strings.Split(newText, "\n")...)
	}
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n"), nil
}

func applySearchReplace(content, search, replace string, all bool) (string, error) {
	if search == "" {
		return "", &OperationError{Kind: OpSearchReplace, Reason: "empty search string"}
	}
	if !strings.Contains(content, search) {
		return "", &OperationError{
			Kind:   OpSearchReplace,
			Reason: fmt.Sprintf("search string not found: %q", truncate(search, 80)),
		}
	}
	n := 1
	if all {
		n = -1
	}
	return strings.Replace(content, search, replace, n), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// =============================================================================
// Steps and Plans
// =============================================================================

// StepAction is what a step does to its target file.
type StepAction string

const (
	ActionCreate StepAction = "create"
	ActionModify StepAction = "modify"
	ActionDelete StepAction = "delete"
)

// Step is one file's ordered operation sequence within a plan.
type Step struct {
	ID         string      `json:"id"`
	FilePath   string      `json:"filePath"`
	Action     StepAction  `json:"action"`
	Summary    string      `json:"summary,omitempty"`
	Rationale  string      `json:"rationale,omitempty"`
	Operations []Operation `json:"operations,omitempty"`
}

// Validate checks the step's structural invariants: delete steps carry zero
// operations, create and modify steps carry at least one.
func (s *Step) Validate() error {
	if s.FilePath == "" {
		return fmt.Errorf("step %s: missing file path", s.ID)
	}
	switch s.Action {
	case ActionDelete:
		if len(s.Operations) != 0 {
			return fmt.Errorf("step %s: delete step must carry no operations", s.ID)
		}
	case ActionCreate, ActionModify:
		if len(s.Operations) == 0 {
			return fmt.Errorf("step %s: %s step must carry at least one operation", s.ID, s.Action)
		}
	default:
		return fmt.Errorf("step %s: unknown action %q", s.ID, s.Action)
	}
	return nil
}

// Plan is an ordered step sequence, applied strictly in order.
type Plan struct {
	Steps []Step `json:"steps"`
}

// ParsePlan decodes a generator-produced JSON plan and validates every step.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode edit plan: %w", err)
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("edit plan has no steps")
	}
	for i := range p.Steps {
		if err := p.Steps[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// Files returns the distinct file paths referenced by the plan, in order.
func (p *Plan) Files() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range p.Steps {
		if !seen[s.FilePath] {
			seen[s.FilePath] = true
			out = append(out, s.FilePath)
		}
	}
	return out
}
