package env

import (
	"log/slog"
	"testing"
	"time"
)

func TestGet(t *testing.T) {
	t.Setenv("FARMSYNC_TEST_VALUE", "set")
	if got := Get("FARMSYNC_TEST_VALUE", "default"); got != "set" {
		t.Errorf("Get() = %q, want set", got)
	}
	if got := Get("FARMSYNC_TEST_MISSING", "default"); got != "default" {
		t.Errorf("Get() = %q, want default", got)
	}
}

func TestGetInt64(t *testing.T) {
	t.Setenv("FARMSYNC_CHAIN", "137")
	t.Setenv("FARMSYNC_BAD", "abc")

	if got := GetInt64("FARMSYNC_CHAIN", 1); got != 137 {
		t.Errorf("GetInt64() = %d, want 137", got)
	}
	if got := GetInt64("FARMSYNC_BAD", 1); got != 1 {
		t.Errorf("GetInt64() with bad value = %d, want fallback 1", got)
	}
}

func TestGetDuration(t *testing.T) {
	t.Setenv("FARMSYNC_INTERVAL", "2m")
	t.Setenv("FARMSYNC_NEGATIVE", "-5s")

	if got := GetDuration("FARMSYNC_INTERVAL", time.Second); got != 2*time.Minute {
		t.Errorf("GetDuration() = %v, want 2m", got)
	}
	if got := GetDuration("FARMSYNC_NEGATIVE", time.Second); got != time.Second {
		t.Errorf("GetDuration() with negative value = %v, want fallback", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{raw: "debug", want: slog.LevelDebug},
		{raw: "WARN", want: slog.LevelWarn},
		{raw: "error", want: slog.LevelError},
		{raw: "warning", want: slog.LevelWarn},
		{raw: "debug+2", want: slog.LevelDebug + 2},
		{raw: "", want: slog.LevelInfo},
		{raw: "verbose", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.raw)
			if got := ParseLogLevel(slog.LevelInfo); got != tt.want {
				t.Errorf("ParseLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
