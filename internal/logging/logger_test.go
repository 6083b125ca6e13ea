package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"ERROR", slog.LevelError, true},
		{"verbose", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if tt.ok != (got != nil) {
				t.Fatalf("parseLevel(%q) = %v, want ok=%v", tt.input, got, tt.ok)
			}
			if got != nil && *got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	a := GetLogger("registry")
	b := GetLogger("registry")
	if a != b {
		t.Error("GetLogger returned different instances for the same module")
	}
}

func TestInitializeAppliesModuleLevels(t *testing.T) {
	// Logger created before Initialize must pick up the configured level.
	GetLogger("sessions")

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"sessions": "debug",
		},
	})

	mu.RLock()
	defer mu.RUnlock()
	if got := moduleLevels["sessions"].Level(); got != slog.LevelDebug {
		t.Errorf("sessions level = %v, want debug", got)
	}
}

func TestTeeHandlerGatesPerDestination(t *testing.T) {
	var warnBuf, debugBuf bytes.Buffer
	warnOnly := slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn})
	everything := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := slog.New(newTeeHandler(warnOnly, everything))

	log.Info("camera started")
	log.Warn("frame capture failed")

	if strings.Contains(warnBuf.String(), "camera started") {
		t.Error("warn-gated destination received an info record")
	}
	if !strings.Contains(warnBuf.String(), "frame capture failed") {
		t.Error("warn-gated destination missed a warn record")
	}
	if !strings.Contains(debugBuf.String(), "camera started") {
		t.Error("debug destination missed an info record")
	}
}
