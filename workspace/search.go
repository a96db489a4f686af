// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Name Search
// =============================================================================

// Directories that never appear in search results (no descend either).
var searchIgnored = []string{
	"node_modules", "target", "dist", "build", ".git", ".drydock",
	"runtime", "models", "source",
}

// Path prefixes filtered from results as defense in depth.
var searchIgnoredPrefixes = []string{"source/", "runtime/", "models/"}

const (
	searchMaxDepth   = 8
	searchMaxResults = 20
)

// SearchFilesByName finds files whose name matches the query.
//
// # Description
//
// Walks the workspace up to a bounded depth and returns at most 20 relative
// paths, ranked: exact filename, then exact stem, then partial match; ties
// broken by segment count (root-near first), path length, then alphabetical.
// The match is case-insensitive.
func (w *Workspace) SearchFilesByName(fileName string) ([]string, error) {
	query := strings.ToLower(strings.TrimSpace(fileName))
	if query == "" {
		return nil, nil
	}

	var matches []string
	w.walkForName("", 0, query, &matches)

	filtered := matches[:0]
	for _, p := range matches {
		norm := filepath.ToSlash(p)
		ignored := false
		for _, pref := range searchIgnoredPrefixes {
			if strings.HasPrefix(norm, pref) {
				ignored = true
				break
			}
		}
		if !ignored {
			filtered = append(filtered, p)
		}
	}
	matches = filtered

	sortSearchResults(matches, query)
	if len(matches) > searchMaxResults {
		matches = matches[:searchMaxResults]
	}
	return matches, nil
}

func (w *Workspace) walkForName(rel string, depth int, query string, out *[]string) {
	if depth > searchMaxDepth || len(*out) >= searchMaxResults {
		return
	}
	entries, err := os.ReadDir(filepath.Join(w.root, filepath.FromSlash(rel)))
	if err != nil {
		return
	}
	for _, e := range entries {
		if len(*out) >= searchMaxResults {
			return
		}
		name := e.Name()
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		if e.IsDir() {
			skip := false
			for _, d := range searchIgnored {
				if strings.EqualFold(d, name) {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
			w.walkForName(childRel, depth+1, query, out)
			continue
		}
		nameLower := strings.ToLower(name)
		stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if nameLower == query || stem == query ||
			strings.Contains(nameLower, query) || strings.Contains(stem, query) {
			*out = append(*out, childRel)
		}
	}
}

func sortSearchResults(matches []string, query string) {
	rank := func(p string) (int, int, int) {
		base := strings.ToLower(filepath.Base(p))
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		tier := 2
		switch {
		case base == query:
			tier = 0
		case stem == query:
			tier = 1
		}
		segments := strings.Count(filepath.ToSlash(p), "/") + 1
		return tier, segments, len(p)
	}
	sort.Slice(matches, func(i, j int) bool {
		it, is, il := rank(matches[i])
		jt, js, jl := rank(matches[j])
		if it != jt {
			return it < jt
		}
		if is != js {
			return is < js
		}
		if il != jl {
			return il < jl
		}
		return matches[i] < matches[j]
	})
}

// =============================================================================
// Tree Snapshot
// =============================================================================

var snapshotIgnored = []string{
	"node_modules", ".git", "dist", "build", ".next", "out", ".turbo",
	".cache", "coverage", "target", ".venv", "venv", "__pycache__",
	".DS_Store", ".drydock",
}

const (
	snapshotMaxDepth     = 25
	snapshotMaxFiles     = 2000
	snapshotMaxFileBytes = 2 * 1024 * 1024
)

// SnapshotFileEntry describes one file in a tree snapshot.
type SnapshotFileEntry struct {
	Path       string `json:"path"`
	SizeBytes  int64  `json:"sizeBytes"`
	ModifiedAt string `json:"modifiedAt"`
}

// TreeSnapshot summarizes the workspace tree for project context.
type TreeSnapshot struct {
	TotalFiles int64               `json:"totalFiles"`
	TotalDirs  int64               `json:"totalDirs"`
	Files      []SnapshotFileEntry `json:"files"`
	TopLevel   []string            `json:"topLevel"`
}

// WalkSnapshot walks the workspace and returns a bounded tree snapshot.
//
// # Description
//
// Symlinks are skipped, ignored directories are not descended, and the file
// list is capped at 2000 entries of at most 2 MiB each. Counters keep
// counting past the cap so callers can tell the snapshot is partial.
func (w *Workspace) WalkSnapshot() (*TreeSnapshot, error) {
	snap := &TreeSnapshot{}

	type frame struct {
		rel   string
		depth int
	}
	stack := []frame{{rel: "", depth: 0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > snapshotMaxDepth {
			continue
		}
		if len(snap.Files) >= snapshotMaxFiles {
			break
		}
		entries, err := os.ReadDir(filepath.Join(w.root, filepath.FromSlash(f.rel)))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.Type()&os.ModeSymlink != 0 {
				continue
			}
			name := e.Name()
			rel := name
			if f.rel != "" {
				rel = f.rel + "/" + name
			}
			if e.IsDir() {
				skip := false
				for _, d := range snapshotIgnored {
					if strings.EqualFold(d, name) {
						skip = true
						break
					}
				}
				if skip {
					continue
				}
				snap.TotalDirs++
				if f.depth == 0 {
					snap.TopLevel = append(snap.TopLevel, name)
				}
				stack = append(stack, frame{rel: rel, depth: f.depth + 1})
				continue
			}
			snap.TotalFiles++
			if f.depth == 0 {
				snap.TopLevel = append(snap.TopLevel, name)
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.Size() <= snapshotMaxFileBytes && len(snap.Files) < snapshotMaxFiles {
				snap.Files = append(snap.Files, SnapshotFileEntry{
					Path:       rel,
					SizeBytes:  info.Size(),
					ModifiedAt: info.ModTime().UTC().Format(time.RFC3339),
				})
			}
		}
	}

	sort.Strings(snap.TopLevel)
	return snap, nil
}
