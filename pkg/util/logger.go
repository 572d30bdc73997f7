package util

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// LevelVerbose sits between debug and info.
const LevelVerbose = slog.Level(-2)

// Attribute keys used by source loggers.
const (
	LoggerKey = "logger"
	SourceKey = "source"
)

// LoggerPrefix is the name of all data source loggers.
const LoggerPrefix = "hostmon.datasource"

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "verbose":
		return LevelVerbose
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a logger writing to w. Format is "json", "text" or
// "console" (the default).
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.Any() == LevelVerbose {
				a.Value = slog.StringValue("VERBOSE")
			}
			return a
		},
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = NewConsoleHandler(w, level)
	}
	return slog.New(handler)
}

// SourceLogger returns the logger of the data source id.
func SourceLogger(base *slog.Logger, id string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(slog.String(LoggerKey, LoggerPrefix+"."+id), slog.String(SourceKey, id))
}

// ConsoleHandler prints ` [source] message key=value` lines with a bold
// source id, the way interactive runs show which source is talking.
type ConsoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	source string
	attrs  []groupedAttr
	groups []string
	bold   *color.Color
}

// groupedAttr is an attr added by WithAttrs with the group prefix that was
// open at that time.
type groupedAttr struct {
	prefix string
	attr   slog.Attr
}

func (h *ConsoleHandler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

// NewConsoleHandler returns a console handler writing to w.
func NewConsoleHandler(w io.Writer, level slog.Leveler) *ConsoleHandler {
	return &ConsoleHandler{mu: &sync.Mutex{}, w: w, level: level, bold: color.New(color.Bold)}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	if h.source != "" {
		fmt.Fprintf(&b, " %s%s%s ", h.bold.Sprint("["), h.source, h.bold.Sprint("]"))
	}
	if r.Level >= slog.LevelWarn {
		b.WriteString(r.Level.String() + ": ")
	}
	b.WriteString(r.Message)

	write := func(prefix string, a slog.Attr) {
		if a.Equal(slog.Attr{}) || (prefix == "" && (a.Key == LoggerKey || a.Key == SourceKey)) {
			return
		}
		fmt.Fprintf(&b, " %s%s=%v", prefix, a.Key, a.Value.Resolve())
	}
	for _, ga := range h.attrs {
		write(ga.prefix, ga.attr)
	}
	prefix := h.prefix()
	r.Attrs(func(a slog.Attr) bool {
		write(prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]groupedAttr(nil), h.attrs...)
	prefix := h.prefix()
	for _, a := range attrs {
		next.attrs = append(next.attrs, groupedAttr{prefix: prefix, attr: a})
		if a.Key == SourceKey && prefix == "" {
			next.source = a.Value.String()
		}
	}
	return &next
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}
