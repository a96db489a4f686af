// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diffapply

import (
	"context"
	"testing"

	"github.com/lanternworks/drydock/workspace"
)

func newTestEngine(t *testing.T) (*Engine, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return NewEngine(ws, nil), ws
}

func mustWrite(t *testing.T, ws *workspace.Workspace, path, content string) {
	t.Helper()
	if err := ws.WriteFile(path, content); err != nil {
		t.Fatalf("WriteFile(%q): %v", path, err)
	}
}

func mustRead(t *testing.T, ws *workspace.Workspace, path string) string {
	t.Helper()
	content, err := ws.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%q): %v", path, err)
	}
	return content
}

const modifyDiff = `--- a/main.go
+++ b/main.go
@@ -1,3 +1,3 @@
 package main
-var x = 1
+var x = 2
 var y = 3
`

func TestEngine_Preview(t *testing.T) {
	t.Run("modify existing file", func(t *testing.T) {
		eng, ws := newTestEngine(t)
		mustWrite(t, ws, "main.go", "package main\nvar x = 1\nvar y = 3\n")

		result, err := eng.Preview(modifyDiff)
		if err != nil {
			t.Fatalf("Preview: %v", err)
		}
		if len(result.Conflicts) != 0 {
			t.Fatalf("conflicts = %v, want none", result.Conflicts)
		}
		if len(result.Files) != 1 {
			t.Fatalf("files = %d, want 1", len(result.Files))
		}
		want := "package main\nvar x = 2\nvar y = 3\n"
		if result.Files[0].New != want {
			t.Errorf("New = %q, want %q", result.Files[0].New, want)
		}
		// Preview must not write.
		if got := mustRead(t, ws, "main.go"); got != "package main\nvar x = 1\nvar y = 3\n" {
			t.Errorf("file changed during preview: %q", got)
		}
	})

	t.Run("stale base is an explicit conflict", func(t *testing.T) {
		eng, ws := newTestEngine(t)
		mustWrite(t, ws, "main.go", "completely different content\n")

		result, err := eng.Preview(modifyDiff)
		if err != nil {
			t.Fatalf("Preview: %v", err)
		}
		if len(result.Conflicts) != 1 || result.Conflicts[0].Path != "main.go" {
			t.Fatalf("conflicts = %v, want one for main.go", result.Conflicts)
		}
		if len(result.Files) != 0 {
			t.Errorf("files = %v, want none", result.Files)
		}
	})

	t.Run("conflict does not abort sibling files", func(t *testing.T) {
		eng, ws := newTestEngine(t)
		mustWrite(t, ws, "main.go", "drifted\n")
		mustWrite(t, ws, "other.txt", "one\n")

		d := modifyDiff + `--- a/other.txt
+++ b/other.txt
@@ -1,1 +1,1 @@
-one
+two
`
		result, err := eng.Preview(d)
		if err != nil {
			t.Fatalf("Preview: %v", err)
		}
		if len(result.Conflicts) != 1 {
			t.Fatalf("conflicts = %v, want one", result.Conflicts)
		}
		if len(result.Files) != 1 || result.Files[0].Path != "other.txt" {
			t.Fatalf("files = %v, want preview for other.txt", result.Files)
		}
	})

	t.Run("path escape fails the whole diff", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		d := "--- a/../evil.txt\n+++ b/../evil.txt\n@@ -1,1 +1,1 @@\n-a\n+b\n"
		if _, err := eng.Preview(d); err == nil {
			t.Error("Preview accepted escaping path")
		}

		outcome, err := eng.Apply(context.Background(), d)
		if err == nil {
			t.Fatal("Apply accepted escaping path")
		}
		if len(outcome.Applied) != 0 {
			t.Errorf("applied = %v, want none", outcome.Applied)
		}
		// The failure entry names the offending path.
		if len(outcome.Failed) != 1 || outcome.Failed[0].Path != "../evil.txt" {
			t.Errorf("failures = %+v, want one naming ../evil.txt", outcome.Failed)
		}
	})

	t.Run("insert-only hunk", func(t *testing.T) {
		eng, ws := newTestEngine(t)
		mustWrite(t, ws, "list.txt", "alpha\nbeta\n")

		d := "--- a/list.txt\n+++ b/list.txt\n@@ -1,0 +2,1 @@\n+between\n"
		result, err := eng.Preview(d)
		if err != nil {
			t.Fatalf("Preview: %v", err)
		}
		if len(result.Conflicts) != 0 {
			t.Fatalf("conflicts = %v", result.Conflicts)
		}
		want := "alpha\nbetween\nbeta\n"
		if result.Files[0].New != want {
			t.Errorf("New = %q, want %q", result.Files[0].New, want)
		}
	})
}

func TestEngine_ApplyAndRevert(t *testing.T) {
	t.Run("apply captures snapshot and revert restores", func(t *testing.T) {
		eng, ws := newTestEngine(t)
		original := "package main\nvar x = 1\nvar y = 3\n"
		mustWrite(t, ws, "main.go", original)

		outcome, err := eng.Apply(context.Background(), modifyDiff)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if len(outcome.Applied) != 1 {
			t.Fatalf("applied = %v, want [main.go]", outcome.Applied)
		}
		if got := mustRead(t, ws, "main.go"); got != "package main\nvar x = 2\nvar y = 3\n" {
			t.Errorf("content after apply = %q", got)
		}
		if len(outcome.BeforeSnapshots) != 1 || !outcome.BeforeSnapshots[0].Existed {
			t.Fatalf("snapshots = %+v", outcome.BeforeSnapshots)
		}
		if outcome.BeforeSnapshots[0].Content != original {
			t.Errorf("snapshot content = %q, want original", outcome.BeforeSnapshots[0].Content)
		}

		revert := eng.Revert(outcome.BeforeSnapshots)
		if len(revert.Failed) != 0 {
			t.Fatalf("revert failures = %v", revert.Failed)
		}
		if got := mustRead(t, ws, "main.go"); got != original {
			t.Errorf("content after revert = %q, want original", got)
		}
	})

	t.Run("revert deletes created files", func(t *testing.T) {
		eng, ws := newTestEngine(t)
		d := "--- /dev/null\n+++ b/created.txt\n@@ -0,0 +1,1 @@\n+hello\n"

		outcome, err := eng.Apply(context.Background(), d)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if got := mustRead(t, ws, "created.txt"); got != "hello\n" {
			t.Errorf("created content = %q", got)
		}
		if outcome.BeforeSnapshots[0].Existed {
			t.Error("snapshot claims created file existed")
		}

		eng.Revert(outcome.BeforeSnapshots)
		exists, err := ws.Exists("created.txt")
		if err != nil {
			t.Fatal(err)
		}
		if exists {
			t.Error("created file survived revert")
		}
	})

	t.Run("delete diff removes file", func(t *testing.T) {
		eng, ws := newTestEngine(t)
		mustWrite(t, ws, "old.txt", "bye\n")
		d := "--- a/old.txt\n+++ /dev/null\n@@ -1,1 +0,0 @@\n-bye\n"

		outcome, err := eng.Apply(context.Background(), d)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		exists, err := ws.Exists("old.txt")
		if err != nil {
			t.Fatal(err)
		}
		if exists {
			t.Error("file survived delete diff")
		}

		revert := eng.Revert(outcome.BeforeSnapshots)
		if len(revert.Failed) != 0 {
			t.Fatalf("revert failures = %v", revert.Failed)
		}
		if got := mustRead(t, ws, "old.txt"); got != "bye\n" {
			t.Errorf("restored content = %q", got)
		}
	})

	t.Run("conflicted file becomes failure entry", func(t *testing.T) {
		eng, ws := newTestEngine(t)
		mustWrite(t, ws, "main.go", "drifted content\n")

		outcome, err := eng.Apply(context.Background(), modifyDiff)
		if err != nil {
			t.Fatalf("Apply returned pipeline error: %v", err)
		}
		if len(outcome.Failed) != 1 || outcome.Failed[0].Path != "main.go" {
			t.Fatalf("failed = %v, want one entry for main.go", outcome.Failed)
		}
		if len(outcome.Applied) != 0 {
			t.Errorf("applied = %v, want none", outcome.Applied)
		}
	})
}

func TestSimulate(t *testing.T) {
	fds, err := Parse(modifyDiff)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	t.Run("matching base", func(t *testing.T) {
		updated, conflict := Simulate("package main\nvar x = 1\nvar y = 3\n", fds[0])
		if conflict != nil {
			t.Fatalf("conflict = %v", conflict)
		}
		if updated != "package main\nvar x = 2\nvar y = 3\n" {
			t.Errorf("updated = %q", updated)
		}
	})

	t.Run("drifted base", func(t *testing.T) {
		_, conflict := Simulate("something else\n", fds[0])
		if conflict == nil {
			t.Fatal("expected conflict for drifted base")
		}
		if conflict.Path != "main.go" {
			t.Errorf("conflict path = %q", conflict.Path)
		}
	})
}
