package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestQuiet(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)
	defer func() { Quiet = false }()

	var buf bytes.Buffer
	Setup(&buf, slog.LevelDebug)

	Info("bus %d opened", 1)
	Debug("probe %#x", 0x50)
	if out := buf.String(); !strings.Contains(out, "bus 1 opened") || !strings.Contains(out, "probe 0x50") {
		t.Fatalf("output = %q", out)
	}

	buf.Reset()
	Quiet = true
	Info("hidden")
	Debug("hidden")
	Error("failed: %s", "nack")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("quiet output = %q", out)
	}
	if !strings.Contains(out, "failed: nack") {
		t.Errorf("error missing: %q", out)
	}
}

func TestSetupLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Setup(&buf, slog.LevelInfo)
	Debug("invisible")
	if buf.Len() != 0 {
		t.Errorf("debug at info level: %q", buf.String())
	}
}
