package core

import (
	"bytes"
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
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(NewSlog(slog.LevelDebug, "json", &buf))

	logger.Info("scheduler started", F("workers", 4), F("scheduler", "abc"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "scheduler started" || rec["level"] != "INFO" {
		t.Errorf("unexpected record: %v", rec)
	}
	if rec["workers"] != float64(4) || rec["scheduler"] != "abc" {
		t.Errorf("fields missing from record: %v", rec)
	}
}

func TestDefaultLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(NewSlog(slog.LevelWarn, "text", &buf))

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Error("job panicked", F("job", "render"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("records below warn were written: %s", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "job=render") {
		t.Errorf("error record missing: %s", out)
	}
}

func TestNewSlogLogger_NilUsesDefault(t *testing.T) {
	logger := NewSlogLogger(nil)
	if logger.logger == nil {
		t.Fatal("NewSlogLogger(nil) has no slog logger")
	}
}
