// Package logging provides module-scoped slog loggers with per-module
// level overrides that can be set from configuration.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Packages take this instead of the concrete type so tests can pass fakes.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu            sync.RWMutex
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevels  = make(map[string]*slog.LevelVar)
	globalConfig  Config
	globalLevel   = &slog.LevelVar{}
	initialized   bool
)

// Initialize sets up the logging system. Loggers handed out before
// Initialize are re-leveled and re-handled to match the config.
func Initialize(config Config) {
	mu.Lock()
	defer mu.Unlock()

	globalConfig = config
	initialized = true

	level := parseLevel(config.Level)
	if level == nil {
		l := slog.LevelInfo
		level = &l
	}
	globalLevel.Set(*level)

	for module, levelVar := range moduleLevels {
		moduleLevel := *level
		if s, ok := config.Modules[module]; ok {
			if parsed := parseLevel(s); parsed != nil {
				moduleLevel = *parsed
			}
		}
		levelVar.Set(moduleLevel)
		moduleLoggers[module] = slog.New(newHandler(config.Format, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(newHandler(config.Format, globalLevel)))
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	if logger, ok := moduleLoggers[module]; ok {
		mu.RUnlock()
		return logger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if logger, ok := moduleLoggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(initialModuleLevel(module))

	format := "text"
	if initialized {
		format = globalConfig.Format
	}

	logger := slog.New(newHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevels[module] = levelVar
	return logger
}

// initialModuleLevel resolves the starting level for a module. Caller holds mu.
func initialModuleLevel(module string) slog.Level {
	if !initialized {
		return slog.LevelInfo
	}
	level := slog.LevelInfo
	if parsed := parseLevel(globalConfig.Level); parsed != nil {
		level = *parsed
	}
	if s, ok := globalConfig.Modules[module]; ok {
		if parsed := parseLevel(s); parsed != nil {
			level = *parsed
		}
	}
	return level
}

// newHandler builds the handler chain: stdout (text or json) plus the
// systemd journal when available.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	if IsJournalAvailable() {
		return newTeeHandler(stdout, NewJournalHandler(level))
	}
	return stdout
}

// parseLevel converts a string level to slog.Level. Unknown levels return nil.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
