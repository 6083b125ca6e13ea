package ffmpeg

import (
	"log/slog"
	"strings"
)

// ParseLogLine extracts the severity from one line of FFmpeg stderr.
// With -loglevel level+info FFmpeg prefixes lines with "[info] message"
// or "[component @ 0x...] [level] message" for component logs. The
// returned message has the level bracket stripped but keeps the
// component prefix.
func ParseLogLine(line string) (slog.Level, string) {
	level, msg := splitLevel(line)
	return levelToSlog(level), msg
}

func splitLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}

	bracket := line[1:end]
	if isLogLevel(bracket) {
		return bracket, line[end+2:]
	}

	// Component prefix form. Keep the component, strip the [level].
	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if nextEnd := strings.Index(rest, "] "); nextEnd != -1 {
			if nextBracket := rest[1:nextEnd]; isLogLevel(nextBracket) {
				return nextBracket, component + rest[nextEnd+2:]
			}
		}
	}

	return "info", line
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

func levelToSlog(level string) slog.Level {
	switch level {
	case "panic", "fatal", "error":
		return slog.LevelError
	case "warning":
		return slog.LevelWarn
	case "verbose", "debug", "trace":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
