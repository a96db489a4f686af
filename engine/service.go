// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine wires the mutation-safety components into one service and
// exposes them over HTTP.
//
// # Description
//
// The service is the only layer allowed to combine preview, apply, revert,
// proposals, validation, and verification. A single mutex serializes every
// mutating operation against the workspace root; reads (preview, list) do
// not take it.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lanternworks/drydock/config"
	"github.com/lanternworks/drydock/diffapply"
	"github.com/lanternworks/drydock/generator"
	"github.com/lanternworks/drydock/history"
	"github.com/lanternworks/drydock/plan"
	"github.com/lanternworks/drydock/proposal"
	"github.com/lanternworks/drydock/telemetry"
	"github.com/lanternworks/drydock/validate"
	"github.com/lanternworks/drydock/verify"
	"github.com/lanternworks/drydock/workspace"
)

const tracerName = "drydock.engine"

// ErrNoGenerator is returned when a generation path is used without a
// configured model runtime.
var ErrNoGenerator = errors.New("no generator configured")

// Service orchestrates all mutation paths for one workspace.
//
// # Thread Safety
//
// Safe for concurrent use. Mutating operations are serialized by an
// internal mutex; the proposal manager and history store carry their own
// locks for bookkeeping.
type Service struct {
	cfg       config.Config
	ws        *workspace.Workspace
	diffs     *diffapply.Engine
	plans     *plan.Engine
	proposals *proposal.Manager
	validator *validate.PatchValidator
	pipeline  *verify.Pipeline
	hist      *history.Store
	gen       generator.Generator
	metrics   *Metrics
	logger    *slog.Logger
	watcher   *workspace.Watcher

	// applyMu serializes every operation that writes to the workspace.
	applyMu sync.Mutex
}

// NewService assembles the engine over a workspace root.
func NewService(cfg config.Config, ws *workspace.Workspace, gen generator.Generator, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		cfg:       cfg,
		ws:        ws,
		diffs:     diffapply.NewEngine(ws, logger),
		plans:     plan.NewEngine(ws, logger),
		proposals: proposal.NewManager(ws, logger),
		validator: validate.NewPatchValidator(ws, cfg.MaxPatchLines),
		pipeline: verify.NewPipeline(cfg.Stages, &verify.ExecRunner{},
			verify.WithMaxRepairAttempts(cfg.MaxRepairAttempts),
			verify.WithLogger(logger),
		),
		hist:    history.NewStore(history.DefaultStoreOptions(ws.Root())),
		gen:     gen,
		metrics: metrics,
		logger:  logger,
	}
}

// Workspace returns the underlying workspace.
func (s *Service) Workspace() *workspace.Workspace { return s.ws }

// Proposals returns the proposal manager.
func (s *Service) Proposals() *proposal.Manager { return s.proposals }

// History returns the event log.
func (s *Service) History() *history.Store { return s.hist }

// =============================================================================
// Diff Path
// =============================================================================

// PreviewDiff validates and previews a unified diff without writing.
func (s *Service) PreviewDiff(ctx context.Context, patch string) (*diffapply.PreviewResult, *validate.Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "PreviewDiff")
	defer span.End()

	validation, err := s.validator.Validate(ctx, patch)
	if err != nil {
		return nil, nil, err
	}
	preview, err := s.diffs.Preview(patch)
	if err != nil {
		return nil, validation, err
	}
	return preview, validation, nil
}

// ApplyDiff applies a unified diff under the single-flight lock and records
// the outcome.
func (s *Service) ApplyDiff(ctx context.Context, patch string) (*diffapply.ApplyOutcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ApplyDiff")
	defer span.End()

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	started := time.Now()
	outcome, err := s.diffs.Apply(ctx, patch)
	s.metrics.ApplyDurationSec.Observe(time.Since(started).Seconds())

	result := "ok"
	if err != nil || (outcome != nil && len(outcome.Failed) > 0) {
		result = "failed"
	}
	s.metrics.AppliesTotal.WithLabelValues(result).Inc()
	if outcome != nil {
		s.metrics.FilesWritten.Add(float64(len(outcome.Applied)))
		s.hist.Record(history.Event{
			Kind:    history.EventApply,
			Paths:   outcome.Applied,
			Success: result == "ok",
			Detail:  "unified diff apply",
		})
	}
	span.SetAttributes(attribute.String("result", result))
	return outcome, err
}

// RevertSnapshots restores a snapshot list under the single-flight lock.
func (s *Service) RevertSnapshots(ctx context.Context, snapshots []diffapply.FileSnapshot) *diffapply.RevertOutcome {
	_, span := otel.Tracer(tracerName).Start(ctx, "RevertSnapshots",
		trace.WithAttributes(attribute.Int("files", len(snapshots))))
	defer span.End()

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	outcome := s.diffs.Revert(snapshots)
	s.metrics.RevertsTotal.Inc()
	s.hist.Record(history.Event{
		Kind:    history.EventRevert,
		Paths:   outcome.Applied,
		Success: len(outcome.Failed) == 0,
		Detail:  "snapshot revert",
	})
	return outcome
}

// =============================================================================
// Plan Path
// =============================================================================

// PreviewPlan computes per-step previews without writing.
func (s *Service) PreviewPlan(ctx context.Context, p *plan.Plan) ([]plan.StepPreview, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PreviewPlan")
	defer span.End()

	previews := make([]plan.StepPreview, 0, len(p.Steps))
	for i := range p.Steps {
		pv, err := s.plans.PreviewStep(&p.Steps[i])
		if err != nil {
			return previews, err
		}
		previews = append(previews, *pv)
	}
	return previews, nil
}

// ApplyPlan executes a structured edit plan under the single-flight lock.
func (s *Service) ApplyPlan(ctx context.Context, p *plan.Plan) (*plan.PlanOutcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ApplyPlan",
		trace.WithAttributes(attribute.Int("steps", len(p.Steps))))
	defer span.End()

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	started := time.Now()
	outcome, err := s.plans.ApplyPlan(ctx, p)
	s.metrics.ApplyDurationSec.Observe(time.Since(started).Seconds())

	result := "ok"
	if err != nil || (outcome != nil && outcome.Failed != nil) {
		result = "failed"
	}
	s.metrics.AppliesTotal.WithLabelValues(result).Inc()
	if outcome != nil {
		s.metrics.FilesWritten.Add(float64(len(outcome.Applied)))
		var paths []string
		for _, snap := range outcome.BeforeSnapshots {
			paths = append(paths, snap.Path)
		}
		s.hist.Record(history.Event{
			Kind:    history.EventApply,
			Paths:   paths,
			Success: result == "ok",
			Detail:  "edit plan apply",
		})
	}
	return outcome, err
}

// =============================================================================
// Proposal Path
// =============================================================================

// BuildDiffProposal turns a unified diff into a pending proposal entry
// without admitting it. Conflicted files are excluded from the entry.
func (s *Service) BuildDiffProposal(ctx context.Context, prompt, patch string) (*proposal.Entry, *diffapply.PreviewResult, error) {
	preview, _, err := s.PreviewDiff(ctx, patch)
	if err != nil {
		return nil, nil, err
	}

	entry := &proposal.Entry{
		Kind:      proposal.KindSingle,
		Prompt:    prompt,
		PatchText: patch,
	}
	if len(preview.Files) > 1 {
		entry.Kind = proposal.KindMulti
	}
	for _, fp := range preview.Files {
		entry.Changes = append(entry.Changes, proposal.FileChange{
			Path:     fp.Path,
			Original: fp.Old,
			Proposed: fp.New,
			Delete:   fp.IsDelete,
			Include:  true,
		})
	}
	return entry, preview, nil
}

// AdmitProposal places an entry on the stack and registers its files for
// drift watching when a watcher is running.
func (s *Service) AdmitProposal(entry *proposal.Entry, confirmEvict proposal.ConfirmFunc) error {
	if err := s.proposals.Admit(entry, confirmEvict); err != nil {
		return err
	}
	s.metrics.ProposalsTotal.Inc()
	if s.watcher != nil {
		for _, c := range entry.Changes {
			if err := s.watcher.Watch(c.Path); err != nil {
				s.logger.Warn("drift watch failed", "path", c.Path, "error", err.Error())
			}
		}
	}
	return nil
}

// StartDriftWatch begins reporting external edits to files referenced by
// pending proposals. Drift is surfaced through the proposal manager's
// conflict hook; no entry changes status on its own.
func (s *Service) StartDriftWatch(ctx context.Context) error {
	w, err := workspace.NewWatcher(s.ws, s.proposals.NotifyExternalChange, s.logger)
	if err != nil {
		return err
	}
	s.watcher = w
	s.proposals.SetConflictHook(func(entryID, path string) {
		s.logger.Warn("external change to proposed file", "proposal_id", entryID, "path", path)
	})
	go w.Run(ctx)
	return nil
}

// ApplyProposal applies a pending proposal under the single-flight lock.
func (s *Service) ApplyProposal(ctx context.Context, id string, confirmDataLoss proposal.ConfirmFunc) (*proposal.ApplySnapshot, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ApplyProposal")
	defer span.End()
	logger := telemetry.LoggerWithProposal(ctx, s.logger, id)

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	started := time.Now()
	snapshot, err := s.proposals.Apply(ctx, id, confirmDataLoss)
	s.metrics.ApplyDurationSec.Observe(time.Since(started).Seconds())

	result := "ok"
	if err != nil {
		result = "failed"
	}
	s.metrics.AppliesTotal.WithLabelValues(result).Inc()
	if snapshot != nil {
		s.metrics.FilesWritten.Add(float64(len(snapshot.Changes)))
		s.hist.Record(history.Event{
			Kind:       history.EventApply,
			ProposalID: id,
			Paths:      snapshot.TouchedPaths(),
			Success:    err == nil,
			Detail:     "proposal apply",
		})
	}
	if err != nil {
		logger.Error("proposal apply failed", "error", err.Error())
		return snapshot, err
	}
	return snapshot, nil
}

// RevertProposal undoes an applied proposal under the single-flight lock.
func (s *Service) RevertProposal(ctx context.Context, id string) (*proposal.ApplySnapshot, *diffapply.RevertOutcome, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "RevertProposal")
	defer span.End()

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	snapshot, outcome, err := s.proposals.Revert(id)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.RevertsTotal.Inc()
	s.hist.Record(history.Event{
		Kind:       history.EventRevert,
		ProposalID: id,
		Paths:      outcome.Applied,
		Success:    len(outcome.Failed) == 0,
		Detail:     "proposal revert",
	})
	return snapshot, outcome, nil
}

// =============================================================================
// Verification Path
// =============================================================================

// Verify runs the configured pipeline once.
func (s *Service) Verify(ctx context.Context) (*verify.Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Verify")
	defer span.End()

	result, err := s.pipeline.Run(ctx, s.ws.Root())
	s.recordVerify(result, err)
	return result, err
}

// VerifyWithRepair runs verification with the bounded auto-repair loop.
// Repair patches are applied directly through the diff path; touched seeds
// the generator's file context.
func (s *Service) VerifyWithRepair(ctx context.Context, touched []string) (*verify.RepairOutcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "VerifyWithRepair")
	defer span.End()

	var gen verify.RepairGenerator
	if s.gen != nil {
		gen = s.gen
	}

	outcome, err := s.pipeline.RunWithRepair(ctx, s.ws.Root(), gen, s.applyRepairPatch, touched)
	if outcome != nil {
		s.metrics.RepairAttempts.Add(float64(outcome.Attempts))
		s.recordVerify(outcome.Final, err)
		if outcome.Attempts > 0 {
			s.hist.Record(history.Event{
				Kind:    history.EventRepair,
				Success: outcome.Repaired,
				Detail:  "auto-repair loop",
			})
		}
	}
	return outcome, err
}

// applyRepairPatch is the pipeline's write-back hook.
func (s *Service) applyRepairPatch(ctx context.Context, patch string) ([]string, error) {
	outcome, err := s.ApplyDiff(ctx, patch)
	if err != nil {
		return nil, err
	}
	return outcome.Applied, nil
}

func (s *Service) recordVerify(result *verify.Result, err error) {
	if result == nil {
		return
	}
	label := "passed"
	if err != nil || !result.AllPassed {
		label = "failed"
	}
	s.metrics.VerifyRunsTotal.WithLabelValues(label).Inc()
	s.hist.Record(history.Event{
		Kind:    history.EventVerify,
		Success: label == "passed",
		Detail:  "verification run",
	})
}

// =============================================================================
// Generation Path
// =============================================================================

// ProposeFromPrompt asks the generator for a diff and stages it as a pending
// proposal.
func (s *Service) ProposeFromPrompt(ctx context.Context, prompt string, confirmEvict proposal.ConfirmFunc) (*proposal.Entry, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ProposeFromPrompt")
	defer span.End()

	if s.gen == nil {
		return nil, ErrNoGenerator
	}
	patch, err := s.gen.Propose(ctx, prompt)
	if err != nil {
		return nil, err
	}
	entry, _, err := s.BuildDiffProposal(ctx, prompt, patch)
	if err != nil {
		return nil, err
	}
	if err := s.AdmitProposal(entry, confirmEvict); err != nil {
		return nil, err
	}
	return entry, nil
}
