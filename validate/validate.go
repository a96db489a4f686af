// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validate checks model-generated patches before they reach the
// apply path.
//
// # Description
//
// Validation is advisory and read-only: it bounds patch size, confirms the
// text parses as a unified diff, and parses the would-be patched content
// with tree-sitter to catch changes that break syntax. Rejections here cost
// nothing to undo because nothing was written.
package validate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/lanternworks/drydock/diffapply"
	"github.com/lanternworks/drydock/workspace"
)

// DefaultMaxPatchLines bounds a single patch.
const DefaultMaxPatchLines = 5000

// IssueType classifies a validation finding.
type IssueType string

const (
	IssueSizeLimit IssueType = "size_limit"
	IssueDiffParse IssueType = "diff_parse"
	IssuePathScope IssueType = "path_scope"
	IssueSyntax    IssueType = "syntax"
)

// Issue is one validation finding.
type Issue struct {
	Type    IssueType `json:"type"`
	File    string    `json:"file,omitempty"`
	Line    int       `json:"line,omitempty"`
	Message string    `json:"message"`
}

// PatchStats summarizes a parsed patch.
type PatchStats struct {
	FilesAffected int `json:"filesAffected"`
	LinesAdded    int `json:"linesAdded"`
	LinesRemoved  int `json:"linesRemoved"`
}

// Result reports a validation pass. Issues never block the caller by
// themselves; the engine decides what to do with an invalid patch.
type Result struct {
	Valid  bool       `json:"valid"`
	Issues []Issue    `json:"issues"`
	Stats  PatchStats `json:"stats"`
}

func (r *Result) addIssue(issue Issue) {
	r.Valid = false
	r.Issues = append(r.Issues, issue)
}

// PatchValidator runs the pre-apply checks.
//
// # Thread Safety
//
// Safe for concurrent use; tree-sitter parsers are created per call.
type PatchValidator struct {
	ws       *workspace.Workspace
	maxLines int
}

// NewPatchValidator creates a validator over the workspace. maxLines <= 0
// selects DefaultMaxPatchLines.
func NewPatchValidator(ws *workspace.Workspace, maxLines int) *PatchValidator {
	if maxLines <= 0 {
		maxLines = DefaultMaxPatchLines
	}
	return &PatchValidator{ws: ws, maxLines: maxLines}
}

// Validate checks a unified diff without touching the filesystem.
//
// # Description
//
// Stages run in order: size bound, diff parse, path scope, then per-file
// syntax of the simulated patched content. A failure in an earlier stage
// stops the later ones since they depend on its output.
func (v *PatchValidator) Validate(ctx context.Context, patchText string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Valid: true, Issues: []Issue{}}

	if lines := strings.Count(patchText, "\n") + 1; lines > v.maxLines {
		result.addIssue(Issue{
			Type:    IssueSizeLimit,
			Message: fmt.Sprintf("patch has %d lines, limit is %d", lines, v.maxLines),
		})
		return result, nil
	}

	fileDiffs, err := diffapply.Parse(patchText)
	if err != nil {
		result.addIssue(Issue{
			Type:    IssueDiffParse,
			Message: fmt.Sprintf("invalid diff format: %v", err),
		})
		return result, nil
	}

	result.Stats = calculateStats(fileDiffs)

	for _, fd := range fileDiffs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := workspace.ValidateRelPath(fd.Path); err != nil {
			result.addIssue(Issue{
				Type:    IssuePathScope,
				File:    fd.Path,
				Message: err.Error(),
			})
			continue
		}

		if fd.IsDelete {
			continue
		}

		lang := detectLanguage(fd.Path)
		if lang == nil {
			continue
		}

		original, err := v.ws.ReadFileOrEmpty(fd.Path)
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", fd.Path, err)
		}
		patched, conflict := diffapply.Simulate(original, fd)
		if conflict != nil {
			// Context mismatches are the preview path's finding; syntax
			// validation only speaks to content it can produce.
			continue
		}

		if err := v.checkSyntax(ctx, fd.Path, patched, lang, result); err != nil {
			return nil, fmt.Errorf("validate %s: %w", fd.Path, err)
		}
	}

	return result, nil
}

func (v *PatchValidator) checkSyntax(ctx context.Context, path, content string, lang *sitter.Language, result *Result) error {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	if errNode := findFirstError(tree.RootNode()); errNode != nil {
		result.addIssue(Issue{
			Type:    IssueSyntax,
			File:    path,
			Line:    int(errNode.StartPoint().Row) + 1,
			Message: "syntax error in patched file",
		})
	}
	return nil
}

// findFirstError returns the first ERROR or MISSING node in document order.
func findFirstError(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findFirstError(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func calculateStats(fileDiffs []*diffapply.FileDiff) PatchStats {
	stats := PatchStats{FilesAffected: len(fileDiffs)}
	for _, fd := range fileDiffs {
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					stats.LinesAdded++
				case strings.HasPrefix(line, "-"):
					stats.LinesRemoved++
				}
			}
		}
	}
	return stats
}

// detectLanguage maps a file extension to a tree-sitter grammar, nil when
// the language is unsupported.
func detectLanguage(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return golang.GetLanguage()
	case ".py", ".pyi":
		return python.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	case ".ts", ".tsx", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".rs":
		return rust.GetLanguage()
	case ".sh", ".bash":
		return bash.GetLanguage()
	default:
		return nil
	}
}
