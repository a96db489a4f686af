// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell command assertions are POSIX")
	}
	r := &ExecRunner{}

	t.Run("captures stdout and zero exit", func(t *testing.T) {
		res, err := r.RunCommand(context.Background(), t.TempDir(), "echo hello")
		if err != nil {
			t.Fatalf("RunCommand: %v", err)
		}
		if res.ExitCode != 0 {
			t.Errorf("ExitCode = %d", res.ExitCode)
		}
		if strings.TrimSpace(res.Stdout) != "hello" {
			t.Errorf("Stdout = %q", res.Stdout)
		}
	})

	t.Run("non-zero exit is not an error", func(t *testing.T) {
		res, err := r.RunCommand(context.Background(), t.TempDir(), "exit 3")
		if err != nil {
			t.Fatalf("RunCommand: %v", err)
		}
		if res.ExitCode != 3 {
			t.Errorf("ExitCode = %d, want 3", res.ExitCode)
		}
	})

	t.Run("runs inside the given root", func(t *testing.T) {
		dir := t.TempDir()
		res, err := r.RunCommand(context.Background(), dir, "pwd")
		if err != nil {
			t.Fatalf("RunCommand: %v", err)
		}
		if strings.TrimSpace(res.Stdout) != dir {
			t.Errorf("pwd = %q, want %q", strings.TrimSpace(res.Stdout), dir)
		}
	})

	t.Run("timeout aborts the command", func(t *testing.T) {
		short := &ExecRunner{Timeout: 100 * time.Millisecond}
		_, err := short.RunCommand(context.Background(), t.TempDir(), "sleep 5")
		if err == nil {
			t.Error("timed-out command returned no error")
		}
	})
}
