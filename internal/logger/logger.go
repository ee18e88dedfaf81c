// Package logger configures the process-wide slog logger: a console writer
// and a per-process log-directory file writer, each with its own minimum
// level, mirroring settings.ini's [logging] section.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ParseLevel parses a settings.ini level name to an slog.Level. Unknown
// values fall back to Debug, matching the original's permissive level enum.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical", "fatal":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// Init opens a log file named tg2sip-<pid>.log under dir and installs the
// process-wide default logger, fanning out to stdout and that file with
// independent minimum levels. It returns the file so main can close it on
// shutdown.
func Init(dir, consoleLevel, fileLevel string) (*os.File, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logger: create log directory %s: %w", dir, err)
		}
	}

	var file *os.File
	outputs := map[io.Writer]slog.Level{
		os.Stdout: ParseLevel(consoleLevel),
	}

	if dir != "" {
		path := filepath.Join(dir, fmt.Sprintf("tg2sip-%d.log", os.Getpid()))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logger: open log file %s: %w", path, err)
		}
		file = f
		outputs[f] = ParseLevel(fileLevel)
	}

	handler := newFanoutHandler(outputs)
	slog.SetDefault(slog.New(handler))
	return file, nil
}

// WithCtx returns a logger scoped to a gateway call-context id, the Go
// analogue of the original's per-context spdlog logger that prefixed every
// line with "[<ctx.id()>] ".
func WithCtx(ctxID string) *slog.Logger {
	return slog.Default().With("ctxId", ctxID)
}

// fanoutHandler writes each record to every configured output whose minimum
// level the record clears.
type fanoutHandler struct {
	mu      *sync.Mutex
	outputs map[io.Writer]slog.Level
	attrs   []slog.Attr
	groups  []string
}

func newFanoutHandler(outputs map[io.Writer]slog.Level) *fanoutHandler {
	return &fanoutHandler{mu: &sync.Mutex{}, outputs: outputs}
}

func (h *fanoutHandler) Enabled(_ context.Context, level slog.Level) bool {
	for _, min := range h.outputs {
		if level >= min {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	line := h.format(record)
	for out, min := range h.outputs {
		if record.Level >= min {
			_, _ = out.Write(line)
		}
	}
	return nil
}

func (h *fanoutHandler) format(record slog.Record) []byte {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(record.Time.Format(time.RFC3339))
	b.WriteString("] [")
	b.WriteString(record.Level.String())
	b.WriteString("] ")
	for _, g := range h.groups {
		b.WriteString(g)
		b.WriteByte('.')
	}
	b.WriteString(record.Message)

	writeAttr := func(a slog.Attr) bool {
		if a.Key != "" {
			b.WriteByte(' ')
			b.WriteString(a.Key)
			b.WriteByte('=')
			b.WriteString(a.Value.String())
		}
		return true
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	record.Attrs(writeAttr)
	b.WriteByte('\n')
	return []byte(b.String())
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &fanoutHandler{mu: h.mu, outputs: h.outputs, groups: h.groups}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return next
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := &fanoutHandler{mu: h.mu, outputs: h.outputs, attrs: h.attrs}
	next.groups = append(append([]string{}, h.groups...), name)
	return next
}
