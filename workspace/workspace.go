// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package workspace provides root-scoped filesystem operations.
//
// # Description
//
// Every operation takes a path relative to an absolute workspace root and is
// validated before touching the disk: parent-directory segments and absolute
// prefixes are rejected, so no read or write can escape the root. The rest of
// the engine never calls OS primitives directly; it goes through this adapter.
//
// # Thread Safety
//
// Workspace is safe for concurrent use. Callers serialize overlapping writes
// to the same root at a higher level.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrPathEscape is returned when a relative path would leave the root.
var ErrPathEscape = errors.New("path escapes workspace root")

// ErrNotFound is returned when a file does not exist.
var ErrNotFound = errors.New("file not found")

// Workspace performs filesystem operations scoped to a project root.
type Workspace struct {
	root string
}

// DirEntry describes one entry returned by ReadDir.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
}

// New creates a Workspace rooted at an absolute directory.
//
// # Inputs
//
//   - root: Project root. Must be an absolute path to an existing directory.
//
// # Outputs
//
//   - *Workspace: Ready-to-use adapter.
//   - error: Non-nil if root is relative, missing, or not a directory.
func New(root string) (*Workspace, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("workspace root must be absolute: %s", root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", root)
	}
	return &Workspace{root: filepath.Clean(root)}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// ValidateRelPath checks that rel stays inside the workspace root.
//
// # Description
//
// This is the single safety gate for untrusted paths. A path is rejected if
// it is absolute, carries a drive or volume prefix, or contains a `..`
// segment. Validation is purely lexical; the target does not need to exist.
//
// # Outputs
//
//   - error: ErrPathEscape (wrapped with the offending path) or nil.
func ValidateRelPath(rel string) error {
	if rel == "" {
		return fmt.Errorf("%w: empty path", ErrPathEscape)
	}
	norm := filepath.ToSlash(rel)
	if strings.HasPrefix(norm, "/") || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	for _, seg := range strings.Split(norm, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %s", ErrPathEscape, rel)
		}
	}
	return nil
}

// Resolve validates rel and returns the absolute path under the root.
func (w *Workspace) Resolve(rel string) (string, error) {
	if err := ValidateRelPath(rel); err != nil {
		return "", err
	}
	full := filepath.Join(w.root, filepath.FromSlash(rel))
	// Join cleans the path; confirm containment after cleaning.
	if relBack, err := filepath.Rel(w.root, full); err != nil || strings.HasPrefix(relBack, "..") {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return full, nil
}

// ReadFile returns the content of a file under the root.
//
// Returns ErrNotFound (wrapped) when the file does not exist so callers can
// distinguish "new file" from a real read failure.
func (w *Workspace) ReadFile(rel string) (string, error) {
	full, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	return string(data), nil
}

// ReadFileOrEmpty returns the file content, or "" if the file is absent.
func (w *Workspace) ReadFileOrEmpty(rel string) (string, error) {
	content, err := w.ReadFile(rel)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return content, err
}

// WriteFile writes content to a file under the root, creating parent
// directories as needed.
func (w *Workspace) WriteFile(rel, content string) error {
	full, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(full); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create parent dirs for %s: %w", rel, err)
		}
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// AppendFile appends content plus a trailing newline to a file under the
// root. Creates parent directories and the file if missing.
func (w *Workspace) AppendFile(rel, content string) error {
	full, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(full); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create parent dirs for %s: %w", rel, err)
		}
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("append %s: %w", rel, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content + "\n"); err != nil {
		return fmt.Errorf("append %s: %w", rel, err)
	}
	return nil
}

// DeleteFile removes a file under the root. Deleting a missing file is not
// an error.
func (w *Workspace) DeleteFile(rel string) error {
	full, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", rel, err)
	}
	return nil
}

// Exists reports whether a path exists under the root.
func (w *Workspace) Exists(rel string) (bool, error) {
	full, err := w.Resolve(rel)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(full)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", rel, statErr)
}

// FileSize returns the size in bytes of a file under the root.
func (w *Workspace) FileSize(rel string) (int64, error) {
	full, err := w.Resolve(rel)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return 0, fmt.Errorf("stat %s: %w", rel, err)
	}
	return info.Size(), nil
}

// MkdirAll creates a directory (and parents) under the root.
func (w *Workspace) MkdirAll(rel string) error {
	full, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", rel, err)
	}
	return nil
}

// ReadDir lists a directory under the root, sorted by name.
func (w *Workspace) ReadDir(rel string) ([]DirEntry, error) {
	full, err := w.Resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", rel, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// EnsureLogDir creates the workspace log directory and returns its absolute
// path.
func (w *Workspace) EnsureLogDir() (string, error) {
	full, err := w.Resolve(".drydock/logs")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(full, 0750); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	return full, nil
}
