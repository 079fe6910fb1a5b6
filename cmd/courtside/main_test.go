package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"courtside/internal/ipc"
)

func TestParseWindowFlags(t *testing.T) {
	windows, err := parseWindowFlags([]string{"whistle_play_stop=150", "basket_made=200"})
	if err != nil {
		t.Fatalf("parseWindowFlags: %v", err)
	}
	if windows["whistle_play_stop"] != 150 || windows["basket_made"] != 200 {
		t.Fatalf("windows = %v", windows)
	}

	for _, bad := range []string{"noequals", "=150", "kind=abc", "kind=-5"} {
		if _, err := parseWindowFlags([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}

	if windows, err := parseWindowFlags(nil); err != nil || windows != nil {
		t.Fatalf("empty flags: windows=%v err=%v", windows, err)
	}
}

func TestHumanizeKind(t *testing.T) {
	if got := humanizeKind("whistle_play_stop"); got != "Whistle Play Stop" {
		t.Fatalf("humanizeKind = %q", got)
	}
}

func TestRenderWorkerTable(t *testing.T) {
	out := renderWorkerTable([]ipc.WorkerStatus{
		{ID: "worker-0", PID: 4242, Status: "ready", RequestsServed: 17, Errors: 2, Restarts: 1},
	})
	for _, want := range []string{"worker-0", "4242", "ready", "17"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStreamTable(t *testing.T) {
	out := renderStreamTable([]ipc.StreamStatus{
		{ID: "cam-1", Modality: "visual", ExpectedRate: 30, Frames: 12, QualityScore: 0.97, WithinTargetPrecision: true},
	})
	for _, want := range []string{"cam-1", "visual", "30.0 fps", "97.0%", "yes"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[pool]") {
		t.Fatalf("sample missing pool section:\n%s", data)
	}

	cmd = newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatal("second init without --overwrite must fail")
	}
}
