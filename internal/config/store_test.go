package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore err = %v", err)
	}
	return s, path
}

func TestStoreSeedsDefaults(t *testing.T) {
	s, path := newTestStore(t)

	if got := s.Int(KeyCaptureIntervalMS); got != 60000 {
		t.Errorf("default interval = %d, want 60000", got)
	}
	if s.Bool(KeyCaptureEnable) {
		t.Error("capture enabled by default")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("settings file not created: %v", err)
	}
}

func TestStoreBackfillsNewKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	partial := map[string]any{KeyCaptureName: "print-42"}
	data, _ := json.Marshal(partial)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore err = %v", err)
	}
	if got := s.String(KeyCaptureName); got != "print-42" {
		t.Errorf("existing key = %q, want print-42", got)
	}
	if got := s.String(KeyCaptureStartTime); got != "08:00" {
		t.Errorf("backfilled key = %q, want default 08:00", got)
	}

	// The backfill is persisted.
	raw, _ := os.ReadFile(path)
	var onDisk map[string]any
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatal(err)
	}
	if _, ok := onDisk[KeyCaptureEndTime]; !ok {
		t.Error("backfilled key missing from the persisted file")
	}
}

func TestStoreSetPersists(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.Set(KeyCaptureEnable, true); err != nil {
		t.Fatalf("Set err = %v", err)
	}

	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen err = %v", err)
	}
	if !reloaded.Bool(KeyCaptureEnable) {
		t.Error("Set value lost across reopen")
	}
}

func TestStoreRejectsUnknownKey(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Set("nonsense", 1); err == nil {
		t.Fatal("Set accepted an unknown key")
	}
}

func TestStoreIntCoercesJSONNumbers(t *testing.T) {
	s, _ := newTestStore(t)
	// A value loaded from JSON arrives as float64.
	if err := s.Set(KeyCaptureIntervalMS, float64(5000)); err != nil {
		t.Fatal(err)
	}
	if got := s.Int(KeyCaptureIntervalMS); got != 5000 {
		t.Errorf("Int = %d, want 5000", got)
	}
}

func TestStoreReload(t *testing.T) {
	s, path := newTestStore(t)

	edited := Defaults()
	edited[KeyCaptureName] = "edited-outside"
	data, _ := json.Marshal(edited)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Reload(); err != nil {
		t.Fatalf("Reload err = %v", err)
	}
	if got := s.String(KeyCaptureName); got != "edited-outside" {
		t.Errorf("after reload = %q, want edited-outside", got)
	}
}
