package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileWatcherReloadsAfterExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	reloads := make(chan struct{}, 4)
	w := NewFileWatcher(path, func() error {
		reloads <- struct{}{}
		return nil
	})
	w.debounce = 20 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{"captureEnable":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloads:
	case <-time.After(2 * time.Second):
		t.Fatal("reload never fired after an external write")
	}
}

func TestFileWatcherStopBeforeStart(t *testing.T) {
	w := NewFileWatcher(filepath.Join(t.TempDir(), "missing.json"), func() error { return nil })
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop err = %v", err)
	}
}
