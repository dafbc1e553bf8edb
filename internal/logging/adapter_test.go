package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewSlogAdapter(t *testing.T) {
	t.Run("with logger", func(t *testing.T) {
		logger := slog.Default()
		adapter := NewSlogAdapter(logger)
		if adapter == nil {
			t.Fatal("NewSlogAdapter returned nil")
		}
		if adapter.Logger() != logger {
			t.Error("Logger() did not return the wrapped logger")
		}
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		adapter := NewSlogAdapter(nil)
		if adapter == nil {
			t.Fatal("NewSlogAdapter(nil) returned nil")
		}
		if adapter.Logger() == nil {
			t.Error("Logger() returned nil for default adapter")
		}
	})
}

func TestSlogAdapterLevels(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Debug("debug msg", "k", "v")
	adapter.Info("info msg", "k", "v")
	adapter.Warn("warn msg", "k", "v")
	adapter.Error("error msg", "k", "v")

	out := buf.String()
	for _, want := range []string{"debug msg", "info msg", "warn msg", "error msg", "k=v"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestDefaultLogger(t *testing.T) {
	adapter := DefaultLogger()
	if adapter == nil {
		t.Fatal("DefaultLogger returned nil")
	}
}
