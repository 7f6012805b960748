package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConsoleLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", WithWriter(&buf))

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-level records leaked: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("error", WithWriter(&buf))

	l.Info("before")
	l.SetLevel("debug")
	l.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Errorf("info logged at error level: %s", out)
	}
	if !strings.Contains(out, "after") {
		t.Errorf("debug missing after SetLevel: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumi.log")
	l := New("info", WithFile(path))

	l.Info("hello", "answer", 42)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("log line is not JSON: %v: %s", err, data)
	}
	if record["msg"] != "hello" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["answer"] != float64(42) {
		t.Errorf("answer = %v", record["answer"])
	}
}

func TestCloseWithoutFile(t *testing.T) {
	l := New("info", WithWriter(&bytes.Buffer{}))
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
