// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"
)

// DefaultStageTimeout caps one external check command.
const DefaultStageTimeout = 10 * time.Minute

// ExecRunner runs check commands through the system shell.
//
// # Description
//
// Commands are supplied by project detection, not constructed here; the
// runner's only jobs are working-directory scoping, output capture, and a
// per-command timeout. A running check cannot be aborted mid-process, only
// between stages, which matches the pipeline's suspension points.
type ExecRunner struct {
	// Timeout caps a single command. Zero means DefaultStageTimeout.
	Timeout time.Duration
}

// RunCommand executes command inside root and captures its output.
func (r *ExecRunner) RunCommand(ctx context.Context, root, command string) (*CommandResult, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Dir = root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		// A killed process also surfaces as an ExitError, so cancellation
		// has to be checked first.
		if ctx.Err() != nil {
			return result, fmt.Errorf("command timed out or was cancelled: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("run command: %w", err)
	}
	return result, nil
}
