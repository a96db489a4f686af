// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Project signals checked during root detection, in display order.
var rootSignals = []string{
	".git",
	"package.json",
	"pnpm-lock.yaml",
	"package-lock.json",
	"yarn.lock",
	"Cargo.toml",
	"pyproject.toml",
	"requirements.txt",
	"go.mod",
	"composer.json",
}

// DetectResult is the outcome of project root detection.
type DetectResult struct {
	RootPath     string   `json:"rootPath"`
	SignalsFound []string `json:"signalsFound"`
}

// DetectProjectRoot walks upward from startPath until a directory containing
// a project signal (.git, go.mod, package.json, ...) is found.
//
// # Description
//
// If startPath is a file, the walk starts from its parent. When no signal is
// found before the filesystem root, the last directory visited is returned
// with an empty signal list so the caller can still open a workspace there.
func DetectProjectRoot(startPath string) (*DetectResult, error) {
	start := strings.TrimSpace(startPath)
	if start == "" {
		return nil, fmt.Errorf("start path is empty")
	}

	current := start
	info, err := os.Stat(current)
	if err != nil {
		return nil, fmt.Errorf("stat start path: %w", err)
	}
	if !info.IsDir() {
		current = filepath.Dir(current)
	}
	current, err = filepath.Abs(current)
	if err != nil {
		return nil, fmt.Errorf("resolve start path: %w", err)
	}

	for {
		signals := collectSignals(current)
		if len(signals) > 0 {
			return &DetectResult{
				RootPath:     filepath.ToSlash(current),
				SignalsFound: signals,
			}, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return &DetectResult{RootPath: filepath.ToSlash(current)}, nil
}

func collectSignals(dir string) []string {
	var found []string
	for _, sig := range rootSignals {
		if _, err := os.Stat(filepath.Join(dir, sig)); err == nil {
			found = append(found, sig)
		}
	}
	return found
}
