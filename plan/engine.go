// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package plan

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/lanternworks/drydock/diffapply"
	"github.com/lanternworks/drydock/workspace"
)

// StepPreview is the computed effect of one step.
type StepPreview struct {
	FilePath string `json:"filePath"`
	OldText  string `json:"oldText"`
	NewText  string `json:"newText"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// StepFailure identifies the step that halted a plan.
type StepFailure struct {
	StepID   string `json:"stepId"`
	FilePath string `json:"filePath"`
	Error    string `json:"error"`
}

// PlanOutcome reports a plan application: everything applied before the
// first failure, plus snapshots for every file written so far.
type PlanOutcome struct {
	Applied         []string                 `json:"applied"`
	Failed          *StepFailure             `json:"failed,omitempty"`
	BeforeSnapshots []diffapply.FileSnapshot `json:"beforeSnapshots"`
}

// Engine applies edit plans to one workspace.
//
// # Thread Safety
//
// Engine holds no mutable state; callers serialize overlapping plan applies
// against the same root.
type Engine struct {
	ws     *workspace.Workspace
	logger *slog.Logger
}

// NewEngine creates a plan engine over the given workspace.
func NewEngine(ws *workspace.Workspace, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{ws: ws, logger: logger}
}

// PreviewStep computes a step's effect without writing.
func (e *Engine) PreviewStep(step *Step) (*StepPreview, error) {
	if err := step.Validate(); err != nil {
		return nil, err
	}
	if err := workspace.ValidateRelPath(step.FilePath); err != nil {
		return nil, err
	}

	old, err := e.ws.ReadFileOrEmpty(step.FilePath)
	if err != nil {
		return nil, err
	}

	if step.Action == ActionDelete {
		return &StepPreview{FilePath: step.FilePath, OldText: old, Deleted: true}, nil
	}

	content := old
	if step.Action == ActionCreate {
		content = ""
	}
	for i, op := range step.Operations {
		content, err = op.Apply(content)
		if err != nil {
			return nil, errors.Wrapf(err, "step %s operation %d", step.ID, i+1)
		}
	}
	return &StepPreview{FilePath: step.FilePath, OldText: old, NewText: content}, nil
}

// ApplyStep captures a snapshot and writes one step's effect.
//
// # Outputs
//
//   - *diffapply.FileSnapshot: Before state, non-nil even on write failure
//     once the snapshot was captured.
//   - error: Non-nil if preview or write failed.
func (e *Engine) ApplyStep(step *Step) (*diffapply.FileSnapshot, error) {
	preview, err := e.PreviewStep(step)
	if err != nil {
		return nil, err
	}

	existed, err := e.ws.Exists(step.FilePath)
	if err != nil {
		return nil, err
	}
	snap := &diffapply.FileSnapshot{
		Path:    step.FilePath,
		Content: preview.OldText,
		Existed: existed,
	}

	if step.Action == ActionDelete {
		if !existed {
			return snap, errors.Errorf("step %s: cannot delete missing file %s", step.ID, step.FilePath)
		}
		if err := e.ws.DeleteFile(step.FilePath); err != nil {
			return snap, err
		}
		return snap, nil
	}

	if err := e.ws.WriteFile(step.FilePath, preview.NewText); err != nil {
		return snap, err
	}
	return snap, nil
}

// ApplyPlan applies steps strictly in order, stopping at the first failure.
//
// # Description
//
// The outcome lists exactly the files modified by prior steps as applied,
// carries the failing step's detail, and keeps before snapshots for every
// file written so far. There is no automatic rollback; the caller decides
// whether to revert using the snapshots.
func (e *Engine) ApplyPlan(ctx context.Context, p *Plan) (*PlanOutcome, error) {
	outcome := &PlanOutcome{}

	for i := range p.Steps {
		step := &p.Steps[i]
		if err := ctx.Err(); err != nil {
			outcome.Failed = &StepFailure{
				StepID: step.ID, FilePath: step.FilePath, Error: err.Error(),
			}
			return outcome, err
		}

		snap, err := e.ApplyStep(step)
		if snap != nil {
			// Kept even when the write failed; a partial write is still
			// revertible from the before state.
			outcome.BeforeSnapshots = append(outcome.BeforeSnapshots, *snap)
		}
		if err != nil {
			outcome.Failed = &StepFailure{
				StepID: step.ID, FilePath: step.FilePath, Error: err.Error(),
			}
			e.logger.Warn("plan halted",
				"step", step.ID,
				"path", step.FilePath,
				"applied", len(outcome.Applied),
				"error", err.Error(),
			)
			return outcome, nil
		}
		outcome.Applied = append(outcome.Applied, step.FilePath)
	}

	e.logger.Info("plan applied", "steps", len(p.Steps))
	return outcome, nil
}
