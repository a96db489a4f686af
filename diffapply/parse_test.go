// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diffapply

import (
	"errors"
	"strings"
	"testing"

	"github.com/lanternworks/drydock/workspace"
)

const twoFileDiff = `--- a/src/main.go
+++ b/src/main.go
@@ -1,3 +1,3 @@
 package main
-var x = 1
+var x = 2
 var y = 3
--- a/docs/readme.md
+++ b/docs/readme.md
@@ -1,1 +1,2 @@
 # Readme
+More text.
`

func TestExtractReferencedPaths(t *testing.T) {
	t.Run("strips prefixes and dedupes", func(t *testing.T) {
		paths := ExtractReferencedPaths(twoFileDiff)
		want := []string{"src/main.go", "docs/readme.md"}
		if len(paths) != len(want) {
			t.Fatalf("paths = %v, want %v", paths, want)
		}
		for i := range want {
			if paths[i] != want[i] {
				t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
			}
		}
	})

	t.Run("ignores dev null", func(t *testing.T) {
		d := "--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1,1 @@\n+hi\n"
		paths := ExtractReferencedPaths(d)
		if len(paths) != 1 || paths[0] != "new.txt" {
			t.Errorf("paths = %v, want [new.txt]", paths)
		}
	})

	t.Run("strips timestamp suffix", func(t *testing.T) {
		d := "--- a/file.txt\t2025-01-01 00:00:00\n+++ b/file.txt\t2025-01-02 00:00:00\n"
		paths := ExtractReferencedPaths(d)
		if len(paths) != 1 || paths[0] != "file.txt" {
			t.Errorf("paths = %v, want [file.txt]", paths)
		}
	})
}

func TestValidatePaths(t *testing.T) {
	if _, err := ValidatePaths([]string{"src/a.go", "b.txt"}); err != nil {
		t.Errorf("ValidatePaths = %v, want nil", err)
	}
	bad, err := ValidatePaths([]string{"src/a.go", "../escape.txt"})
	if !errors.Is(err, workspace.ErrPathEscape) {
		t.Errorf("ValidatePaths = %v, want ErrPathEscape", err)
	}
	if bad != "../escape.txt" {
		t.Errorf("offending path = %q, want ../escape.txt", bad)
	}
}

func TestSplitByFile(t *testing.T) {
	t.Run("splits per file", func(t *testing.T) {
		chunks := SplitByFile(twoFileDiff, "")
		if len(chunks) != 2 {
			t.Fatalf("chunks = %d, want 2", len(chunks))
		}
		if !strings.Contains(chunks["src/main.go"], "+var x = 2") {
			t.Errorf("main.go chunk missing hunk body: %q", chunks["src/main.go"])
		}
		if !strings.Contains(chunks["docs/readme.md"], "+More text.") {
			t.Errorf("readme chunk missing hunk body: %q", chunks["docs/readme.md"])
		}
	})

	t.Run("fallback path for headerless diff", func(t *testing.T) {
		body := "@@ -1,1 +1,1 @@\n-a\n+b\n"
		chunks := SplitByFile(body, "target.txt")
		if len(chunks) != 1 {
			t.Fatalf("chunks = %d, want 1", len(chunks))
		}
		if chunks["target.txt"] != body {
			t.Errorf("fallback chunk = %q, want whole body", chunks["target.txt"])
		}
	})
}

func TestParse(t *testing.T) {
	t.Run("multi file", func(t *testing.T) {
		fds, err := Parse(twoFileDiff)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if len(fds) != 2 {
			t.Fatalf("file diffs = %d, want 2", len(fds))
		}
		if fds[0].Path != "src/main.go" || fds[1].Path != "docs/readme.md" {
			t.Errorf("paths = %q, %q", fds[0].Path, fds[1].Path)
		}
		if fds[0].IsNew || fds[0].IsDelete {
			t.Error("existing-file diff flagged as new or delete")
		}
	})

	t.Run("new file", func(t *testing.T) {
		d := "--- /dev/null\n+++ b/created.txt\n@@ -0,0 +1,1 @@\n+hello\n"
		fds, err := Parse(d)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if len(fds) != 1 || !fds[0].IsNew || fds[0].Path != "created.txt" {
			t.Errorf("fds = %+v, want one new-file diff for created.txt", fds[0])
		}
	})

	t.Run("delete file", func(t *testing.T) {
		d := "--- a/old.txt\n+++ /dev/null\n@@ -1,1 +0,0 @@\n-bye\n"
		fds, err := Parse(d)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if len(fds) != 1 || !fds[0].IsDelete || fds[0].Path != "old.txt" {
			t.Errorf("fds = %+v, want one delete diff for old.txt", fds[0])
		}
	})

	t.Run("garbage yields no file diffs", func(t *testing.T) {
		fds, err := Parse("this is not a diff at all")
		if err == nil && len(fds) != 0 {
			t.Errorf("Parse produced %d file diffs from non-diff input", len(fds))
		}
	})
}
