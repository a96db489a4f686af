// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generator adapts the local model runtime as a change generator.
//
// # Description
//
// The engine treats generator output as untrusted text; everything the model
// returns goes through parsing, path validation, and preview before any
// write. Prompt engineering beyond the minimal repair framing is out of
// scope here.
package generator

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lanternworks/drydock/verify"
)

// Generator produces change descriptions from natural-language requests and
// from verification failures.
type Generator interface {
	// Propose returns a unified diff for a described change.
	Propose(ctx context.Context, request string) (string, error)

	// Repair returns a corrective unified diff for a failing check.
	Repair(ctx context.Context, req verify.RepairRequest) (string, error)
}

// =============================================================================
// Local Runtime Client
// =============================================================================

// LocalClient talks to a llama-server style OpenAI-compatible endpoint on
// localhost.
type LocalClient struct {
	client *openai.Client
	model  string
}

// NewLocalClient creates a client against http://127.0.0.1:<port>/v1.
func NewLocalClient(port int, model string) *LocalClient {
	cfg := openai.DefaultConfig("")
	cfg.BaseURL = fmt.Sprintf("http://127.0.0.1:%d/v1", port)
	if model == "" {
		model = "llama"
	}
	return &LocalClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

const proposeSystemPrompt = "You are a coding assistant. Respond with a single unified diff " +
	"against the project root, using --- a/<path> and +++ b/<path> headers. No prose."

// Propose asks the model for a unified diff implementing the request.
func (c *LocalClient) Propose(ctx context.Context, request string) (string, error) {
	return c.chat(ctx, proposeSystemPrompt, request)
}

// Repair builds a minimal repair prompt from the failing stage output and
// the files touched by the last apply.
func (c *LocalClient) Repair(ctx context.Context, req verify.RepairRequest) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The %s check failed (exit code %d) after your last change.\n",
		req.FailingStage.Name, req.FailingStage.ExitCode)
	fmt.Fprintf(&sb, "Command: %s\n", req.FailingStage.Command)
	if len(req.TouchedFiles) > 0 {
		fmt.Fprintf(&sb, "Files changed by the last apply: %s\n", strings.Join(req.TouchedFiles, ", "))
	}
	fmt.Fprintf(&sb, "Attempt %d of %d.\n\n", req.Attempt, req.MaxAttempts)
	if out := strings.TrimSpace(req.FailingStage.Stdout); out != "" {
		fmt.Fprintf(&sb, "stdout:\n%s\n\n", out)
	}
	if errOut := strings.TrimSpace(req.FailingStage.Stderr); errOut != "" {
		fmt.Fprintf(&sb, "stderr:\n%s\n\n", errOut)
	}
	sb.WriteString("Produce a unified diff that fixes the failure.")

	return c.chat(ctx, proposeSystemPrompt, sb.String())
}

func (c *LocalClient) chat(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("local runtime chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("local runtime returned no choices")
	}
	return stripFences(strings.TrimSpace(resp.Choices[0].Message.Content)), nil
}

// stripFences removes a surrounding markdown code fence if present. Models
// frequently wrap diffs despite instructions.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

var _ Generator = (*LocalClient)(nil)
