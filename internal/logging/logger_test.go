package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerPromotesComponent(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(&consoleHandler{writer: &buf, level: levelVar})

	WithComponent(logger, "pool").Info("worker ready", Int("worker", 2))

	line := buf.String()
	if !strings.Contains(line, "INFO pool: worker ready") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "worker=2") {
		t.Fatalf("missing attr in line: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be promoted, not emitted as attr: %q", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(&consoleHandler{writer: &buf, level: levelVar})

	logger.Warn("probe failed", String("detail", "read timed out"))

	if !strings.Contains(buf.String(), `detail="read timed out"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
