// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lanternworks/drydock/verify"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "--- a/x\n+++ b/x", "--- a/x\n+++ b/x"},
		{"plain fence", "```\n--- a/x\n+++ b/x\n```", "--- a/x\n+++ b/x"},
		{"diff fence", "```diff\n--- a/x\n+++ b/x\n```", "--- a/x\n+++ b/x"},
		{"unclosed fence", "```diff\n--- a/x", "--- a/x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripFences(tc.in); got != tc.want {
				t.Errorf("stripFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// newStubRuntime stands in for a local llama-server and captures the last
// request.
func newStubRuntime(t *testing.T, reply string) (*httptest.Server, *openai.ChatCompletionRequest) {
	t.Helper()
	var last openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: reply}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func newStubClient(baseURL, model string) *LocalClient {
	cfg := openai.DefaultConfig("")
	cfg.BaseURL = baseURL + "/v1"
	return &LocalClient{client: openai.NewClientWithConfig(cfg), model: model}
}

func TestLocalClient_Propose(t *testing.T) {
	srv, last := newStubRuntime(t, "```diff\n--- a/x\n+++ b/x\n```")
	c := newStubClient(srv.URL, "test-model")

	patch, err := c.Propose(context.Background(), "change x")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if patch != "--- a/x\n+++ b/x" {
		t.Errorf("patch = %q", patch)
	}
	if last.Model != "test-model" {
		t.Errorf("model = %q", last.Model)
	}
	if len(last.Messages) != 2 || last.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("messages = %+v", last.Messages)
	}
}

func TestLocalClient_Repair(t *testing.T) {
	srv, last := newStubRuntime(t, "--- a/fix\n+++ b/fix")
	c := newStubClient(srv.URL, "test-model")

	_, err := c.Repair(context.Background(), verify.RepairRequest{
		Attempt:     2,
		MaxAttempts: 3,
		FailingStage: verify.StageResult{
			Name:     "test",
			Command:  "go test ./...",
			ExitCode: 1,
			Stderr:   "FAIL: TestThing",
		},
		TouchedFiles: []string{"thing.go"},
	})
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}

	user := last.Messages[1].Content
	for _, want := range []string{"test", "go test ./...", "thing.go", "Attempt 2 of 3", "FAIL: TestThing"} {
		if !strings.Contains(user, want) {
			t.Errorf("repair prompt missing %q:\n%s", want, user)
		}
	}
}
