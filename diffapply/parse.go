// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diffapply parses model-generated unified diffs and applies them to
// a workspace with full-content snapshots as the undo unit.
//
// # Description
//
// The input is untrusted: it may reference paths outside the project root,
// carry hunks that no longer match the file on disk, or not be a well-formed
// diff at all. Parsing and path validation run before any preview or write.
// Patch application uses exact context matching (zero fuzz); a hunk that does
// not match the current content produces a per-file conflict rather than a
// partial application.
package diffapply

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/lanternworks/drydock/workspace"
)

// =============================================================================
// Header Scanning
// =============================================================================

// ExtractReferencedPaths returns every file path referenced by the diff's
// ---/+++ header lines, with a/ b/ prefixes stripped and separators
// normalized to forward slashes. Order follows first appearance.
func ExtractReferencedPaths(unifiedDiff string) []string {
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(strings.NewReader(unifiedDiff))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "--- ") && !strings.HasPrefix(line, "+++ ") {
			continue
		}
		p := headerPath(line[4:])
		if p == "" || p == "/dev/null" || seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	return paths
}

// headerPath extracts the path portion of a ---/+++ header line.
func headerPath(raw string) string {
	p := strings.TrimSpace(raw)
	// Old-style diffs append a tab plus timestamp.
	if idx := strings.IndexByte(p, '\t'); idx != -1 {
		p = p[:idx]
	}
	if p == "/dev/null" {
		return p
	}
	p = strings.TrimPrefix(p, "a/")
	p = strings.TrimPrefix(p, "b/")
	return filepath.ToSlash(strings.TrimSpace(p))
}

// SplitByFile splits a multi-file unified diff into per-file chunks keyed by
// relative path.
//
// # Description
//
// Chunk boundaries are detected by lookahead for the next `--- ` header. When
// the text contains no file header at all, the whole blob is returned as a
// single chunk under fallbackPath, so minimal or slightly malformed diffs
// still reach the apply path for one file.
func SplitByFile(unifiedDiff, fallbackPath string) map[string]string {
	chunks := make(map[string]string)
	lines := strings.Split(unifiedDiff, "\n")

	var current []string
	currentPath := ""

	flush := func() {
		if currentPath != "" && len(current) > 0 {
			chunks[currentPath] = strings.Join(current, "\n")
		}
		current = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(line, "--- ") {
			flush()
			currentPath = ""
			// Prefer the +++ path; a new-file diff has /dev/null on the --- side.
			if p := headerPath(line[4:]); p != "/dev/null" {
				currentPath = p
			}
			if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ") {
				if p := headerPath(lines[i+1][4:]); p != "/dev/null" {
					currentPath = p
				}
			}
		}
		if currentPath != "" {
			current = append(current, line)
		}
	}
	flush()

	if len(chunks) == 0 && strings.TrimSpace(unifiedDiff) != "" && fallbackPath != "" {
		chunks[fallbackPath] = unifiedDiff
	}
	return chunks
}

// ValidatePaths rejects any referenced path that would leave the project
// root. Returns the first offending path alongside its
// workspace.ErrPathEscape error.
func ValidatePaths(paths []string) (string, error) {
	for _, p := range paths {
		if err := workspace.ValidateRelPath(p); err != nil {
			return p, err
		}
	}
	return "", nil
}

// =============================================================================
// Structured Parse
// =============================================================================

// FileDiff is one file's parsed change set.
type FileDiff struct {
	// Path is the workspace-relative target path.
	Path string

	// Hunks are the parsed hunks in input order.
	Hunks []*diff.Hunk

	// IsNew indicates the old side was /dev/null.
	IsNew bool

	// IsDelete indicates the new side was /dev/null.
	IsDelete bool
}

// Parse parses a unified diff into per-file structured diffs.
//
// # Outputs
//
//   - []*FileDiff: One entry per referenced file, in input order.
//   - error: Non-nil if the text cannot be parsed as a unified diff.
func Parse(unifiedDiff string) ([]*FileDiff, error) {
	fds, err := diff.NewMultiFileDiffReader(strings.NewReader(unifiedDiff)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse unified diff: %w", err)
	}

	out := make([]*FileDiff, 0, len(fds))
	for _, fd := range fds {
		p := headerPath(fd.NewName)
		isNew := headerPath(fd.OrigName) == "/dev/null"
		isDelete := p == "/dev/null"
		if isDelete {
			p = headerPath(fd.OrigName)
		}
		if p == "" || p == "/dev/null" {
			continue
		}
		out = append(out, &FileDiff{
			Path:     p,
			Hunks:    fd.Hunks,
			IsNew:    isNew,
			IsDelete: isDelete,
		})
	}
	return out, nil
}
