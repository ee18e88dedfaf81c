package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"TRACE":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelDebug,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFanoutHandlerRespectsPerOutputLevel(t *testing.T) {
	var quiet, verbose bytes.Buffer
	h := newFanoutHandler(map[io.Writer]slog.Level{
		&quiet:   slog.LevelWarn,
		&verbose: slog.LevelDebug,
	})

	logger := slog.New(h)
	logger.Debug("debug line")
	logger.Warn("warn line")

	if strings.Contains(quiet.String(), "debug line") {
		t.Error("quiet output should not contain debug-level line")
	}
	if !strings.Contains(quiet.String(), "warn line") {
		t.Error("quiet output should contain warn-level line")
	}
	if !strings.Contains(verbose.String(), "debug line") {
		t.Error("verbose output should contain debug-level line")
	}
}

func TestInitWritesToFile(t *testing.T) {
	dir := t.TempDir()
	f, err := Init(dir, "error", "debug")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer f.Close()

	WithCtx("1-1").Info("hello")
	_ = f.Sync()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log file, got %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "hello") || !strings.Contains(string(data), "ctxId=1-1") {
		t.Errorf("log file missing expected content: %s", data)
	}
}
