// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		root := t.TempDir()
		cfg, err := Load(root)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		def := Default(root)
		if cfg.ListenAddr != def.ListenAddr || cfg.MaxRepairAttempts != def.MaxRepairAttempts {
			t.Errorf("cfg = %+v, want defaults", cfg)
		}
	})

	t.Run("file values override defaults", func(t *testing.T) {
		root := t.TempDir()
		dir := filepath.Join(root, ".drydock")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		yaml := "listenAddr: 0.0.0.0:9000\nmaxRepairAttempts: 5\nstages:\n  - name: test\n    command: go test ./...\n"
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(root)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ListenAddr != "0.0.0.0:9000" {
			t.Errorf("ListenAddr = %q", cfg.ListenAddr)
		}
		if cfg.MaxRepairAttempts != 5 {
			t.Errorf("MaxRepairAttempts = %d", cfg.MaxRepairAttempts)
		}
		if len(cfg.Stages) != 1 || cfg.Stages[0].Name != "test" {
			t.Errorf("Stages = %+v", cfg.Stages)
		}
	})

	t.Run("environment wins over file", func(t *testing.T) {
		root := t.TempDir()
		dir := filepath.Join(root, ".drydock")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("maxRepairAttempts: 5\n"), 0644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("DRYDOCK_MAX_REPAIR_ATTEMPTS", "7")
		t.Setenv("DRYDOCK_LOG_LEVEL", "debug")

		cfg, err := Load(root)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.MaxRepairAttempts != 7 {
			t.Errorf("MaxRepairAttempts = %d, want env value 7", cfg.MaxRepairAttempts)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Logging.Level = %q", cfg.Logging.Level)
		}
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		root := t.TempDir()
		dir := filepath.Join(root, ".drydock")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{{nope"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(root); err == nil {
			t.Error("malformed yaml accepted")
		}
	})
}
