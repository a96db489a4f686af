// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	t.Run("no span leaves logger unchanged", func(t *testing.T) {
		buf.Reset()
		LoggerWithTrace(context.Background(), logger).Info("plain")
		if strings.Contains(buf.String(), "trace_id") {
			t.Errorf("unexpected trace field: %s", buf.String())
		}
	})

	t.Run("valid span context adds ids", func(t *testing.T) {
		buf.Reset()
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{0x01},
			SpanID:  trace.SpanID{0x02},
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)
		LoggerWithTrace(ctx, logger).Info("traced")
		out := buf.String()
		if !strings.Contains(out, "trace_id") || !strings.Contains(out, "span_id") {
			t.Errorf("missing trace fields: %s", out)
		}
	})
}

func TestLoggerWithProposal(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	LoggerWithProposal(context.Background(), logger, "abc-123").Info("scoped")
	if !strings.Contains(buf.String(), "abc-123") {
		t.Errorf("missing proposal id: %s", buf.String())
	}
}
