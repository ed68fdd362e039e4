package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARNING ", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDefaultLoggerIsInfo(t *testing.T) {
	ctx := context.Background()
	logger := Default()
	if !logger.Enabled(ctx, slog.LevelInfo) || logger.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("Default() should log at info")
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	return line
}

func TestComponentAndServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions(Options{Level: "info", Service: "api", Writer: &buf}).Component("webhook")
	logger.Info("accepted", "org_id", "acme")

	line := decodeLine(t, &buf)
	if line["service"] != "api" || line["component"] != "webhook" || line["org_id"] != "acme" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestSecretsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("info", &buf).Info("provider configured", "openai_api_key", "sk-live", "Authorization", "Bearer x", "model", "gpt")

	line := decodeLine(t, &buf)
	if line["openai_api_key"] != redacted || line["Authorization"] != redacted {
		t.Fatalf("expected redaction, got %v", line)
	}
	if line["model"] != "gpt" {
		t.Fatalf("non-sensitive attribute changed: %v", line)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewWithOptions(Options{Format: "text", Writer: &buf}).Info("hello", "k", "v")
	if out := buf.String(); !strings.Contains(out, "msg=hello") || !strings.Contains(out, "k=v") {
		t.Fatalf("expected text output, got %q", out)
	}
}

func TestWithOnNilLogger(t *testing.T) {
	var logger *Logger
	child := logger.With("k", "v")
	if child == nil || child.Logger == nil {
		t.Fatal("expected usable child logger")
	}
}
