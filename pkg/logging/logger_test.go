// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel accepted unknown level")
	}
}

func TestNew(t *testing.T) {
	t.Run("file sink receives output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "test.log")
		logger, closer, err := New(Config{Level: "info", FilePath: path})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		logger.Info("hello from test", "key", "value")
		if closer != nil {
			if err := closer.Close(); err != nil {
				t.Fatal(err)
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		if !strings.Contains(string(data), "hello from test") {
			t.Errorf("log file missing entry: %q", string(data))
		}
	})

	t.Run("invalid level rejected", func(t *testing.T) {
		if _, _, err := New(Config{Level: "shout"}); err == nil {
			t.Error("invalid level accepted")
		}
	})
}
