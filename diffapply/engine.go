// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diffapply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/lanternworks/drydock/workspace"
)

// =============================================================================
// Errors
// =============================================================================

// PatchApplyError reports a hunk that cannot be applied against the current
// file content (stale base, drifted context). Scoped to one file; sibling
// files in the same diff are unaffected.
type PatchApplyError struct {
	// Path is the file the hunk targets.
	Path string

	// Line is the 1-based line in the current content where matching failed.
	Line int

	// Reason describes the mismatch.
	Reason string
}

func (e *PatchApplyError) Error() string {
	return fmt.Sprintf("patch does not apply to %s at line %d: %s", e.Path, e.Line, e.Reason)
}

// =============================================================================
// Result Types
// =============================================================================

// FileSnapshot captures a file's entire content immediately before a write.
// It is the undo unit: revert writes Content back verbatim, or deletes the
// file when it did not exist before the apply.
type FileSnapshot struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Existed bool   `json:"existed"`
}

// FilePreview is one file's computed old/new content pair.
type FilePreview struct {
	Path     string `json:"path"`
	Old      string `json:"old"`
	New      string `json:"new"`
	IsNew    bool   `json:"isNew"`
	IsDelete bool   `json:"isDelete"`
}

// FileConflict is one file whose change could not be computed. Conflicts are
// reported explicitly so callers cannot mistake "omitted" for "unchanged".
type FileConflict struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// PreviewResult is a dry run of a diff against current workspace content.
type PreviewResult struct {
	Files     []FilePreview  `json:"files"`
	Conflicts []FileConflict `json:"conflicts,omitempty"`
}

// FileFailure is one file that failed during apply or revert.
type FileFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ApplyOutcome reports what an apply call did, per file.
type ApplyOutcome struct {
	Applied         []string       `json:"applied"`
	Failed          []FileFailure  `json:"failed,omitempty"`
	BeforeSnapshots []FileSnapshot `json:"beforeSnapshots"`
}

// RevertOutcome reports what a revert call did, per file.
type RevertOutcome struct {
	Applied []string      `json:"applied"`
	Failed  []FileFailure `json:"failed,omitempty"`
}

// =============================================================================
// Engine
// =============================================================================

// Engine previews, applies, and reverts unified diffs against one workspace.
//
// # Thread Safety
//
// Engine holds no mutable state; callers serialize overlapping applies
// against the same root.
type Engine struct {
	ws     *workspace.Workspace
	logger *slog.Logger
}

// NewEngine creates a diff engine over the given workspace.
func NewEngine(ws *workspace.Workspace, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{ws: ws, logger: logger}
}

// Preview computes the old/new content pair for every file in the diff
// without writing anything.
//
// # Description
//
// Path validation runs first and is fatal to the whole diff. After that,
// each file is independent: a hunk that does not match current content
// produces a FileConflict entry instead of failing the preview.
//
// # Outputs
//
//   - *PreviewResult: Previews plus explicit conflicts.
//   - error: Non-nil on path escape or unparseable diff; nothing partial.
func (e *Engine) Preview(unifiedDiff string) (*PreviewResult, error) {
	if _, err := ValidatePaths(ExtractReferencedPaths(unifiedDiff)); err != nil {
		return nil, err
	}

	fileDiffs, err := Parse(unifiedDiff)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{}
	for _, fd := range fileDiffs {
		old, readErr := e.ws.ReadFileOrEmpty(fd.Path)
		if readErr != nil {
			result.Conflicts = append(result.Conflicts, FileConflict{
				Path:   fd.Path,
				Reason: readErr.Error(),
			})
			continue
		}

		if fd.IsDelete {
			result.Files = append(result.Files, FilePreview{
				Path: fd.Path, Old: old, IsDelete: true,
			})
			continue
		}

		updated, applyErr := applyHunks(fd.Path, old, fd.Hunks)
		if applyErr != nil {
			result.Conflicts = append(result.Conflicts, FileConflict{
				Path:   fd.Path,
				Reason: applyErr.Error(),
			})
			continue
		}
		result.Files = append(result.Files, FilePreview{
			Path:  fd.Path,
			Old:   old,
			New:   updated,
			IsNew: fd.IsNew && old == "",
		})
	}
	return result, nil
}

// Simulate computes one file's patched content against supplied original
// content, with no workspace involved. A hunk mismatch comes back as a
// FileConflict rather than an error so callers can treat it as a per-file
// finding.
func Simulate(original string, fd *FileDiff) (string, *FileConflict) {
	if fd.IsDelete {
		return "", nil
	}
	updated, err := applyHunks(fd.Path, original, fd.Hunks)
	if err != nil {
		return "", &FileConflict{Path: fd.Path, Reason: err.Error()}
	}
	return updated, nil
}

// Apply writes the diff to the workspace, capturing a before snapshot for
// every file touched.
//
// # Description
//
// Not transactional across files: a write failure aborts the remainder of
// the call but already-written files stay written. The caller keeps
// BeforeSnapshots for every file touched so far, which is always enough to
// revert manually. Conflicted files become failure entries and never abort
// siblings.
func (e *Engine) Apply(ctx context.Context, unifiedDiff string) (*ApplyOutcome, error) {
	outcome := &ApplyOutcome{}

	if bad, err := ValidatePaths(ExtractReferencedPaths(unifiedDiff)); err != nil {
		outcome.Failed = append(outcome.Failed, FileFailure{Path: bad, Error: err.Error()})
		return outcome, err
	}

	preview, err := e.Preview(unifiedDiff)
	if err != nil {
		outcome.Failed = append(outcome.Failed, FileFailure{Error: err.Error()})
		return outcome, err
	}
	for _, c := range preview.Conflicts {
		outcome.Failed = append(outcome.Failed, FileFailure{Path: c.Path, Error: c.Reason})
	}

	for _, fp := range preview.Files {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		existed, err := e.ws.Exists(fp.Path)
		if err != nil {
			outcome.Failed = append(outcome.Failed, FileFailure{Path: fp.Path, Error: err.Error()})
			break
		}
		outcome.BeforeSnapshots = append(outcome.BeforeSnapshots, FileSnapshot{
			Path:    fp.Path,
			Content: fp.Old,
			Existed: existed,
		})

		var writeErr error
		if fp.IsDelete {
			writeErr = e.ws.DeleteFile(fp.Path)
		} else {
			writeErr = e.ws.WriteFile(fp.Path, fp.New)
		}
		if writeErr != nil {
			outcome.Failed = append(outcome.Failed, FileFailure{Path: fp.Path, Error: writeErr.Error()})
			e.logger.Error("apply aborted", "path", fp.Path, "error", writeErr.Error())
			break
		}
		outcome.Applied = append(outcome.Applied, fp.Path)
	}

	e.logger.Info("diff applied",
		"applied", len(outcome.Applied),
		"failed", len(outcome.Failed),
	)
	return outcome, nil
}

// Revert restores captured snapshots verbatim.
//
// # Description
//
// Files that did not exist before the apply are deleted rather than written
// back as empty, so apply followed by revert leaves no residue. Paths are
// re-validated; snapshots are processed in order and failures do not stop
// the remaining entries, because restoring as much as possible beats
// stopping early here.
func (e *Engine) Revert(snapshots []FileSnapshot) *RevertOutcome {
	outcome := &RevertOutcome{}
	for _, snap := range snapshots {
		if err := workspace.ValidateRelPath(snap.Path); err != nil {
			outcome.Failed = append(outcome.Failed, FileFailure{Path: snap.Path, Error: err.Error()})
			continue
		}
		var err error
		if snap.Existed {
			err = e.ws.WriteFile(snap.Path, snap.Content)
		} else {
			err = e.ws.DeleteFile(snap.Path)
		}
		if err != nil {
			outcome.Failed = append(outcome.Failed, FileFailure{Path: snap.Path, Error: err.Error()})
			continue
		}
		outcome.Applied = append(outcome.Applied, snap.Path)
	}
	return outcome
}

// =============================================================================
// Zero-Fuzz Hunk Application
// =============================================================================

// applyHunks applies parsed hunks to content with exact context matching.
func applyHunks(path, content string, hunks []*diff.Hunk) (string, error) {
	hadNewline := strings.HasSuffix(content, "\n")
	var lines []string
	if content != "" {
		lines = strings.Split(content, "\n")
		if hadNewline {
			lines = lines[:len(lines)-1]
		}
	}

	var out []string
	cursor := 0

	for _, h := range hunks {
		// "@@ -N,0 ..." means insert after line N; otherwise the hunk starts
		// at line N itself.
		start := int(h.OrigStartLine) - 1
		if h.OrigLines == 0 {
			start = int(h.OrigStartLine)
		}
		if start < cursor || start > len(lines) {
			return "", &PatchApplyError{
				Path: path, Line: int(h.OrigStartLine),
				Reason: "hunk start outside current content",
			}
		}
		out = append(out, lines[cursor:start]...)
		idx := start

		body := strings.Split(strings.TrimSuffix(string(h.Body), "\n"), "\n")
		for _, bl := range body {
			var op byte = ' '
			text := bl
			if len(bl) > 0 {
				op = bl[0]
				text = bl[1:]
			}
			switch op {
			case ' ':
				if idx >= len(lines) || lines[idx] != text {
					return "", &PatchApplyError{
						Path: path, Line: idx + 1,
						Reason: fmt.Sprintf("context mismatch, expected %q", text),
					}
				}
				out = append(out, lines[idx])
				idx++
			case '-':
				if idx >= len(lines) || lines[idx] != text {
					return "", &PatchApplyError{
						Path: path, Line: idx + 1,
						Reason: fmt.Sprintf("removed line mismatch, expected %q", text),
					}
				}
				idx++
			case '+':
				out = append(out, text)
			case '\\':
				// "\ No newline at end of file"
			default:
				return "", &PatchApplyError{
					Path: path, Line: idx + 1,
					Reason: fmt.Sprintf("unrecognized diff line %q", bl),
				}
			}
		}
		cursor = idx
	}

	out = append(out, lines[cursor:]...)
	updated := strings.Join(out, "\n")
	if len(out) > 0 && (hadNewline || content == "") {
		updated += "\n"
	}
	return updated, nil
}
