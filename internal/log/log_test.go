package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("expected attribute in output, got %q", out)
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("hello")

	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("debug message")
	logger.Info("info message")

	if buf.Len() != 0 {
		t.Errorf("expected debug/info to be filtered, got %q", buf.String())
	}

	logger.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Errorf("expected warn to pass, got %q", buf.String())
	}
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic and must accept all levels.
	logger.Debug("discarded")
	logger.Error("discarded")
}
