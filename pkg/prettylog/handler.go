// Package prettylog provides a human-oriented slog handler for local
// development: colorized level, short timestamps and key=value attrs on
// a single line.
package prettylog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const timeFormat = "15:04:05.000"

const (
	reset    = "\033[0m"
	darkGray = 90
	cyan     = 36
	yellow   = 33
	lightRed = 91
	white    = 97
)

func colorize(code int, v string) string {
	return fmt.Sprintf("\033[%dm%s%s", code, v, reset)
}

type Handler struct {
	level slog.Level
	attrs []slog.Attr
	group string

	mu  *sync.Mutex
	out io.Writer
}

func NewHandler(level slog.Level) *Handler {
	return &Handler{
		level: level,
		mu:    new(sync.Mutex),
		out:   os.Stderr,
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "."
	}
	clone.group += name
	return &clone
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	sb.WriteString(colorize(darkGray, r.Time.Format(timeFormat)))
	sb.WriteString(" ")
	sb.WriteString(levelTag(r.Level))
	sb.WriteString(" ")
	sb.WriteString(colorize(white, r.Message))

	for _, a := range h.attrs {
		h.writeAttr(&sb, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&sb, a)
		return true
	})
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *Handler) writeAttr(sb *strings.Builder, a slog.Attr) {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}

	value := a.Value.Resolve()
	var rendered string
	if err, ok := value.Any().(error); ok {
		rendered = err.Error()
	} else {
		rendered = value.String()
	}
	if strings.ContainsAny(rendered, " \t") {
		rendered = fmt.Sprintf("%q", rendered)
	}

	sb.WriteString(" ")
	sb.WriteString(colorize(darkGray, key+"="+rendered))
}

func levelTag(level slog.Level) string {
	tag := level.String() + ":"
	switch {
	case level >= slog.LevelError:
		return colorize(lightRed, tag)
	case level >= slog.LevelWarn:
		return colorize(yellow, tag)
	case level >= slog.LevelInfo:
		return colorize(cyan, tag)
	default:
		return colorize(darkGray, tag)
	}
}
