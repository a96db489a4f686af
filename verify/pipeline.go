// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package verify runs ordered external check commands after an apply and
// drives the bounded auto-repair loop.
//
// # Description
//
// The pipeline is command-agnostic: stage commands come from project
// detection outside this package. Execution stops at the first failing
// stage; a result never contains a passed stage after a failed one. The
// repair bound is enforced here with a real counter, not a UI label.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaxRepairAttempts bounds the auto-repair loop.
const DefaultMaxRepairAttempts = 3

// =============================================================================
// Stages
// =============================================================================

// Stage is one named external check.
type Stage struct {
	// Name identifies the stage (e.g. "typecheck", "lint", "test").
	Name string `json:"name"`

	// Command is the shell command to run inside the project root.
	Command string `json:"command"`
}

// StageResult records one executed stage.
type StageResult struct {
	Name     string `json:"name"`
	Command  string `json:"command"`
	Passed   bool   `json:"passed"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	AllPassed bool `json:"allPassed"`

	// Stages holds results in execution order; the list ends at the first
	// failure.
	Stages []StageResult `json:"stages"`

	// FailedStageIndex identifies the failing stage, nil when all passed.
	FailedStageIndex *int `json:"failedStageIndex"`
}

// FailingStage returns the failed stage result, or nil when all passed.
func (r *Result) FailingStage() *StageResult {
	if r.FailedStageIndex == nil {
		return nil
	}
	return &r.Stages[*r.FailedStageIndex]
}

// =============================================================================
// Command Runner
// =============================================================================

// CommandResult is the raw outcome of one external command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes a check command inside a project root. The pipeline
// supplies ordered command strings; it never constructs them.
type Runner interface {
	RunCommand(ctx context.Context, root, command string) (*CommandResult, error)
}

// =============================================================================
// Pipeline
// =============================================================================

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxRepairAttempts overrides the repair loop bound.
func WithMaxRepairAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxRepairAttempts = n
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline runs verification stages strictly in order.
//
// # Thread Safety
//
// Safe for concurrent use; all state is set at construction.
type Pipeline struct {
	stages            []Stage
	runner            Runner
	logger            *slog.Logger
	maxRepairAttempts int
}

// NewPipeline creates a pipeline over ordered stages.
func NewPipeline(stages []Stage, runner Runner, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:            stages,
		runner:            runner,
		logger:            slog.Default(),
		maxRepairAttempts: DefaultMaxRepairAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the configured stage list.
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Run executes the stages in order, stopping at the first failure.
//
// # Outputs
//
//   - *Result: Stage results up to and including the first failure.
//   - error: Non-nil only for runner errors or cancellation, never for a
//     failing check; a non-zero exit is a result, not an error.
func (p *Pipeline) Run(ctx context.Context, root string) (*Result, error) {
	result := &Result{AllPassed: true}

	for i, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		started := time.Now()
		cmdResult, err := p.runner.RunCommand(ctx, root, stage.Command)
		if err != nil {
			return result, fmt.Errorf("stage %s: %w", stage.Name, err)
		}

		sr := StageResult{
			Name:     stage.Name,
			Command:  stage.Command,
			Passed:   cmdResult.ExitCode == 0,
			ExitCode: cmdResult.ExitCode,
			Stdout:   cmdResult.Stdout,
			Stderr:   cmdResult.Stderr,
		}
		result.Stages = append(result.Stages, sr)

		p.logger.Info("verification stage finished",
			"stage", stage.Name,
			"passed", sr.Passed,
			"exit_code", sr.ExitCode,
			"duration_ms", time.Since(started).Milliseconds(),
		)

		if !sr.Passed {
			idx := i
			result.AllPassed = false
			result.FailedStageIndex = &idx
			break
		}
	}

	return result, nil
}

// =============================================================================
// Bounded Auto-Repair
// =============================================================================

// RepairRequest is the context handed to the generator for one attempt.
type RepairRequest struct {
	// Attempt is 1-based.
	Attempt int

	// MaxAttempts is the enforced bound.
	MaxAttempts int

	// FailingStage is the stage that halted the last run.
	FailingStage StageResult

	// TouchedFiles are the files modified by the last apply.
	TouchedFiles []string
}

// RepairGenerator produces a corrective patch from a failing stage's output.
type RepairGenerator interface {
	Repair(ctx context.Context, req RepairRequest) (string, error)
}

// RepairApplyFunc applies a generated patch directly (no preview) and
// returns the files it touched.
type RepairApplyFunc func(ctx context.Context, patch string) ([]string, error)

// RepairOutcome reports the full repair loop.
type RepairOutcome struct {
	// Attempts is how many repair patches were generated and applied.
	Attempts int `json:"attempts"`

	// Runs holds every verification result, initial run first.
	Runs []*Result `json:"runs"`

	// Final is the last verification result.
	Final *Result `json:"final"`

	// Repaired is true when a repair attempt turned failure into success.
	Repaired bool `json:"repaired"`
}

// RunWithRepair runs verification and, on failure, loops generate → apply →
// re-verify up to the configured bound.
//
// # Description
//
// The failing stage's stdout/stderr plus the touched-file set are fed back
// to the generator; the returned patch is applied directly and verification
// re-runs. The loop stops on the first passing run, on a generator or apply
// error, or when the attempt counter reaches the bound.
func (p *Pipeline) RunWithRepair(
	ctx context.Context,
	root string,
	gen RepairGenerator,
	apply RepairApplyFunc,
	touched []string,
) (*RepairOutcome, error) {
	outcome := &RepairOutcome{}

	result, err := p.Run(ctx, root)
	if result != nil {
		outcome.Runs = append(outcome.Runs, result)
		outcome.Final = result
	}
	if err != nil {
		return outcome, err
	}
	if result.AllPassed {
		return outcome, nil
	}
	if gen == nil || apply == nil {
		return outcome, nil
	}

	for attempt := 1; attempt <= p.maxRepairAttempts; attempt++ {
		failing := outcome.Final.FailingStage()
		if failing == nil {
			break
		}

		patch, err := gen.Repair(ctx, RepairRequest{
			Attempt:      attempt,
			MaxAttempts:  p.maxRepairAttempts,
			FailingStage: *failing,
			TouchedFiles: touched,
		})
		if err != nil {
			return outcome, fmt.Errorf("repair attempt %d: %w", attempt, err)
		}

		newlyTouched, err := apply(ctx, patch)
		if err != nil {
			return outcome, fmt.Errorf("repair attempt %d apply: %w", attempt, err)
		}
		outcome.Attempts = attempt
		touched = mergePaths(touched, newlyTouched)

		result, err = p.Run(ctx, root)
		if result != nil {
			outcome.Runs = append(outcome.Runs, result)
			outcome.Final = result
		}
		if err != nil {
			return outcome, err
		}
		if result.AllPassed {
			outcome.Repaired = true
			p.logger.Info("auto-repair succeeded", "attempts", attempt)
			return outcome, nil
		}
	}

	p.logger.Warn("auto-repair exhausted",
		"attempts", outcome.Attempts,
		"max_attempts", p.maxRepairAttempts,
	)
	return outcome, nil
}

func mergePaths(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, p := range a {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range b {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
