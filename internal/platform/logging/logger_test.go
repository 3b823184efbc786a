package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")

	logger.Info("hello", "key", "value")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "value", record["key"])
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "text")

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestContextHandler_AddsConnectionAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "text")

	ctx := WithConnection(context.Background(), "c0ffee", "producer")
	logger.InfoContext(ctx, "reading received")

	output := buf.String()
	assert.Contains(t, output, "conn_id=c0ffee")
	assert.Contains(t, output, "role=producer")
	assert.NotContains(t, output, "request_id")
}

func TestContextHandler_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "text")

	ctx := WithRequestID(context.Background(), "abcd1234")
	logger.InfoContext(ctx, "ingest")

	assert.Contains(t, buf.String(), "request_id=abcd1234")
}

func TestContextHandler_PreservesWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "text").With("component", "relay")

	ctx := WithConnection(context.Background(), "42", "viewer")
	logger.InfoContext(ctx, "msg")

	assert.Contains(t, buf.String(), "component=relay")
	assert.Contains(t, buf.String(), "conn_id=42")
}

func TestRequestID(t *testing.T) {
	id := NewRequestID()
	assert.Len(t, id, 8)

	_, ok := RequestID(context.Background())
	assert.False(t, ok)

	_, ok = RequestID(WithRequestID(context.Background(), ""))
	assert.False(t, ok)
}
