package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcherInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumi.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != LogInfo {
		t.Errorf("log level = %q, want info", got)
	}
}

func TestWatcherInitialLoadFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumi.yaml")
	writeConfig(t, path, "server:\n  log_level: shouting\n")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("expected an error for an invalid initial config")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumi.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	changed := make(chan ConfigDiff, 1)
	w, err := NewWatcher(path, func(old, new *Config) {
		changed <- Diff(old, new)
	}, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Backdate so the mtime comparison cannot miss a fast rewrite.
	writeConfig(t, path, "server:\n  log_level: debug\n")
	past := time.Now().Add(-time.Hour)
	os.Chtimes(path, past, past)

	select {
	case d := <-changed:
		if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
			t.Errorf("diff = %+v, want log level change to debug", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onChange not called")
	}

	waitFor(t, time.Second, func() bool {
		return w.Current().Server.LogLevel == LogDebug
	})
}

func TestWatcherKeepsOldConfigOnInvalidWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumi.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	w, err := NewWatcher(path, func(_, _ *Config) {
		t.Error("onChange must not fire for an invalid config")
	}, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "server:\n  log_level: shouting\n")
	past := time.Now().Add(-time.Hour)
	os.Chtimes(path, past, past)

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Server.LogLevel; got != LogInfo {
		t.Errorf("log level = %q, want previous value info", got)
	}
}

func TestWatcherStopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumi.yaml")
	writeConfig(t, path, "server: {}\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}
