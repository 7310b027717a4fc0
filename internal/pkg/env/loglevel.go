package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel maps LOG_LEVEL to a slog.Level. Besides the level names it
// accepts slog's offset form ("debug+2", "warn-4") via slog.Level's text
// unmarshalling. Unset or unparsable values yield fallback.
func ParseLogLevel(fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(Get("LOG_LEVEL", ""))
	if raw == "" {
		return fallback
	}
	if strings.EqualFold(raw, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}
	return level
}
