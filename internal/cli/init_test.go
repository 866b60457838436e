package cli

import (
	"context"
	"log/slog"
	"testing"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level string
		debug bool
	}{
		{"debug", true},
		{"info", false},
		{"verbose", false}, // unknown levels fall back to info
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.level)
			logger := SetupLogger("test")
			if logger.Component() != "test" {
				t.Errorf("component = %q", logger.Component())
			}
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debug {
				t.Errorf("debug enabled = %v, want %v", got, tt.debug)
			}
		})
	}
}
