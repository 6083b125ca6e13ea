package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/camkit/camserver/internal/events"
	"github.com/camkit/camserver/internal/logging"
)

// Runtime setting keys. The store rejects writes to anything else.
const (
	KeyCaptureEnable     = "captureEnable"
	KeyCaptureName       = "captureName"
	KeyCaptureDevice     = "captureDevice"
	KeyCaptureIntervalMS = "captureIntervalMs"
	KeyCaptureStartTime  = "captureStartTime"
	KeyCaptureEndTime    = "captureEndTime"
	KeyCaptureTriggerURL = "captureTriggerUrl"
	KeyCaptureWindowOn   = "captureWindowEnable"
	KeyControlsEnable    = "controlsEnable"
	KeyControlsDevice    = "controlsDevice"
	KeyTimelapseFPS      = "timelapseFps"
)

// Defaults returns the full runtime settings map with default values.
// Unknown files are backfilled against this set so new keys appear
// after upgrades.
func Defaults() map[string]any {
	return map[string]any{
		KeyCaptureEnable:     false,
		KeyCaptureName:       "",
		KeyCaptureDevice:     "/dev/video0",
		KeyCaptureIntervalMS: 60000,
		KeyCaptureStartTime:  "08:00",
		KeyCaptureEndTime:    "20:00",
		KeyCaptureTriggerURL: "",
		KeyCaptureWindowOn:   true,
		KeyControlsEnable:    true,
		KeyControlsDevice:    "/dev/video0",
		KeyTimelapseFPS:      30,
	}
}

// Store is the runtime settings store backing the /api/config surface
// and the capture scheduler. Values live in a JSON file; every Set
// persists immediately and publishes a ConfigUpdatedEvent.
type Store struct {
	path string
	bus  *events.Bus
	log  logging.Logger

	mu     sync.RWMutex
	values map[string]any
}

// NewStore loads (or creates) the settings file at path. Missing keys
// are backfilled with defaults and persisted.
func NewStore(path string, bus *events.Bus) (*Store, error) {
	s := &Store{
		path:   path,
		bus:    bus,
		log:    logging.GetLogger("config"),
		values: Defaults(),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	default:
		var file map[string]any
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
		backfilled := false
		for key := range s.values {
			if v, ok := file[key]; ok {
				s.values[key] = v
			} else {
				backfilled = true
			}
		}
		if backfilled {
			if err := s.persistLocked(); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// All returns a copy of every setting.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Get returns one setting.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set updates one known setting, persists the file and publishes a
// ConfigUpdatedEvent.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown setting %q", key)
	}
	s.values[key] = value
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.log.Info("setting updated", "key", key)
	if s.bus != nil {
		s.bus.Publish(events.ConfigUpdatedEvent{
			Key:       key,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return nil
}

// Reload re-reads the settings file, used when the file changes on
// disk outside the API.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reload settings %s: %w", s.path, err)
	}
	var file map[string]any
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse settings %s: %w", s.path, err)
	}

	s.mu.Lock()
	for key := range s.values {
		if v, ok := file[key]; ok {
			s.values[key] = v
		}
	}
	s.mu.Unlock()
	return nil
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Bool reads a setting as bool.
func (s *Store) Bool(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}

// String reads a setting as string.
func (s *Store) String(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Int reads a setting as int. JSON numbers decode as float64, so both
// shapes are accepted.
func (s *Store) Int(key string) int {
	v, _ := s.Get(key)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// persistLocked writes the settings file. Callers hold s.mu.
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, s.path)
}
