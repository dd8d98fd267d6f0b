package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset  = "\x1b[0m"
	colorGray   = "\x1b[90m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
)

// mediaHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<component>\t<message>\t<key=value ...>
type mediaHandler struct {
	w         io.Writer
	component string
	minLevel  slog.Level
	color     bool
	attrs     []slog.Attr
}

func (h *mediaHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.minLevel }

func (h *mediaHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	_, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, h.level(r.Level), h.component, r.Message)
	if err != nil {
		return err
	}

	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err = fmt.Fprintln(h.w)
	return err
}

func (h *mediaHandler) level(l slog.Level) string {
	name := l.String()
	if !h.color {
		return name
	}
	color := colorGreen
	switch {
	case l >= slog.LevelError:
		color = colorRed
	case l >= slog.LevelWarn:
		color = colorYellow
	case l < slog.LevelInfo:
		color = colorGray
	}
	return color + name + colorReset
}

func (h *mediaHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &mediaHandler{
		w:         h.w,
		component: h.component,
		minLevel:  h.minLevel,
		color:     h.color,
		attrs:     append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *mediaHandler) WithGroup(string) slog.Handler { return h }

// ParseLevel maps a config level name onto a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level: %s", name)
}

// NewLogger creates a logger writing to w at the given minimum level.
// Level names are colored when w is a terminal.
func NewLogger(w io.Writer, level, component string) (*slog.Logger, error) {
	minLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(&mediaHandler{
		w:         w,
		component: component,
		minLevel:  minLevel,
		color:     isTerminal(w),
	}), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// slogAdapter wraps *slog.Logger to satisfy the broker.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
