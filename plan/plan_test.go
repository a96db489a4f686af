// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package plan

import (
	"errors"
	"strings"
	"testing"
)

func TestOperation_Apply(t *testing.T) {
	content := "line1\nline2\nline3\nline4"

	t.Run("replace_range inclusive", func(t *testing.T) {
		op := Operation{Kind: OpReplaceRange, StartLine: 2, EndLine: 3, NewText: "replaced"}
		got, err := op.Apply(content)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if got != "line1\nreplaced\nline4" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("replace_range empty text deletes lines", func(t *testing.T) {
		op := Operation{Kind: OpReplaceRange, StartLine: 2, EndLine: 3}
		got, err := op.Apply(content)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if got != "line1\nline4" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("replace_range out of bounds", func(t *testing.T) {
		op := Operation{Kind: OpReplaceRange, StartLine: 2, EndLine: 99, NewText: "x"}
		_, err := op.Apply(content)
		var opErr *OperationError
		if !errors.As(err, &opErr) {
			t.Fatalf("error = %v, want OperationError", err)
		}
	})

	t.Run("replace_range inverted range", func(t *testing.T) {
		op := Operation{Kind: OpReplaceRange, StartLine: 3, EndLine: 2, NewText: "x"}
		if _, err := op.Apply(content); err == nil {
			t.Fatal("accepted inverted range")
		}
	})

	t.Run("search_and_replace first occurrence", func(t *testing.T) {
		op := Operation{Kind: OpSearchReplace, Search: "line", Replace: "row"}
		got, err := op.Apply(content)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if !strings.HasPrefix(got, "row1\nline2") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("search_and_replace all occurrences", func(t *testing.T) {
		op := Operation{Kind: OpSearchReplace, Search: "line", Replace: "row", All: true}
		got, err := op.Apply(content)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if strings.Contains(got, "line") {
			t.Errorf("got %q, want every occurrence replaced", got)
		}
	})

	t.Run("search_and_replace missing needle fails", func(t *testing.T) {
		op := Operation{Kind: OpSearchReplace, Search: "absent", Replace: "x"}
		_, err := op.Apply(content)
		var opErr *OperationError
		if !errors.As(err, &opErr) {
			t.Fatalf("error = %v, want OperationError", err)
		}
	})

	t.Run("append joins with newline", func(t *testing.T) {
		op := Operation{Kind: OpAppend, NewText: "line5"}
		got, err := op.Apply(content)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if got != content+"\nline5" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("append to empty content", func(t *testing.T) {
		op := Operation{Kind: OpAppend, NewText: "only"}
		got, err := op.Apply("")
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if got != "only" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("prepend joins with newline", func(t *testing.T) {
		op := Operation{Kind: OpPrepend, NewText: "line0"}
		got, err := op.Apply(content)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if got != "line0\n"+content {
			t.Errorf("got %q", got)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		op := Operation{Kind: "rotate"}
		if _, err := op.Apply(content); err == nil {
			t.Fatal("accepted unknown kind")
		}
	})
}

func TestStep_Validate(t *testing.T) {
	t.Run("delete carries no operations", func(t *testing.T) {
		s := Step{ID: "s1", FilePath: "a.txt", Action: ActionDelete}
		if err := s.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
		s.Operations = []Operation{{Kind: OpAppend, NewText: "x"}}
		if err := s.Validate(); err == nil {
			t.Error("delete step with operations accepted")
		}
	})

	t.Run("create and modify need operations", func(t *testing.T) {
		for _, action := range []StepAction{ActionCreate, ActionModify} {
			s := Step{ID: "s1", FilePath: "a.txt", Action: action}
			if err := s.Validate(); err == nil {
				t.Errorf("%s step with no operations accepted", action)
			}
			s.Operations = []Operation{{Kind: OpAppend, NewText: "x"}}
			if err := s.Validate(); err != nil {
				t.Errorf("%s step rejected: %v", action, err)
			}
		}
	})

	t.Run("missing file path", func(t *testing.T) {
		s := Step{ID: "s1", Action: ActionDelete}
		if err := s.Validate(); err == nil {
			t.Error("step without file path accepted")
		}
	})
}

func TestParsePlan(t *testing.T) {
	t.Run("valid plan", func(t *testing.T) {
		data := []byte(`{"steps":[
			{"id":"s1","filePath":"a.txt","action":"create","operations":[{"kind":"append","newText":"hi"}]},
			{"id":"s2","filePath":"b.txt","action":"delete"}
		]}`)
		p, err := ParsePlan(data)
		if err != nil {
			t.Fatalf("ParsePlan: %v", err)
		}
		if len(p.Steps) != 2 {
			t.Fatalf("steps = %d, want 2", len(p.Steps))
		}
		files := p.Files()
		if len(files) != 2 || files[0] != "a.txt" || files[1] != "b.txt" {
			t.Errorf("Files = %v", files)
		}
	})

	t.Run("empty plan rejected", func(t *testing.T) {
		if _, err := ParsePlan([]byte(`{"steps":[]}`)); err == nil {
			t.Error("empty plan accepted")
		}
	})

	t.Run("invalid step rejected", func(t *testing.T) {
		data := []byte(`{"steps":[{"id":"s1","filePath":"a.txt","action":"modify"}]}`)
		if _, err := ParsePlan(data); err == nil {
			t.Error("modify step with no operations accepted")
		}
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		if _, err := ParsePlan([]byte(`{steps:`)); err == nil {
			t.Error("malformed json accepted")
		}
	})
}
