// Package logger provides structured logging for the lockgate CLI: a
// line-oriented slog handler writing to a size-rotated file.
//
// Log output format:
//
//	2006-01-02T15:04:05.000Z LEVEL message key=value key2=value2
//
// One custom level beyond the standard slog set:
//   - LevelTrace (-8): per-attempt lock protocol tracing
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

// LevelTrace logs every step of a lock acquisition, including retries the
// protocol absorbs silently.
const LevelTrace slog.Level = -8

// levelName returns the display name for a log level.
func levelName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= slog.LevelDebug:
		return "DEBUG"
	case l <= slog.LevelInfo:
		return "INFO"
	case l <= slog.LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel converts a level string to slog.Level. Supports trace, debug,
// info, warn, error (case-insensitive); unrecognized strings mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// lineEnding is CRLF on Windows, LF elsewhere.
var lineEnding = "\n"

func init() {
	if runtime.GOOS == "windows" {
		lineEnding = "\r\n"
	}
}

// Handler is a slog.Handler that renders one record per line.
type Handler struct {
	// w is the destination writer for formatted log output.
	w io.Writer
	// mu serializes writes to w so concurrent log calls do not interleave.
	mu *sync.Mutex
	// level is the minimum severity that this handler will emit.
	level slog.Level
	// prefix holds pre-rendered attributes from WithAttrs/WithGroup.
	prefix string
	// group is the dot-separated key prefix from WithGroup.
	group string
}

// NewHandler creates a Handler that writes to w, filtering records below
// level.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder
	buf.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	buf.WriteString(" ")
	buf.WriteString(levelName(r.Level))
	buf.WriteString(" ")
	buf.WriteString(r.Message)
	buf.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&buf, a)
		return true
	})
	buf.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

// appendAttr renders one attribute as " key=value", quoting values that
// contain spaces.
func (h *Handler) appendAttr(buf *strings.Builder, a slog.Attr) {
	buf.WriteString(" ")
	if h.group != "" {
		buf.WriteString(h.group)
		buf.WriteString(".")
	}
	buf.WriteString(a.Key)
	buf.WriteString("=")
	v := a.Value.String()
	if strings.ContainsAny(v, " \t") {
		fmt.Fprintf(buf, "%q", v)
	} else {
		buf.WriteString(v)
	}
}

// WithAttrs returns a new Handler with the given attributes pre-applied.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf strings.Builder
	buf.WriteString(h.prefix)
	for _, a := range attrs {
		h.appendAttr(&buf, a)
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, prefix: buf.String(), group: h.group}
}

// WithGroup returns a new Handler that prefixes subsequent attribute keys
// with the group name ("group.key").
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, prefix: h.prefix, group: group}
}

// ///////////////////////////////////////////////
// Constructor / Helpers
// ///////////////////////////////////////////////

// New creates a slog.Logger writing to a rotating log file. The returned
// io.Closer must be closed on shutdown.
func New(logPath string, minLevel slog.Level, maxSizeMB int) (*slog.Logger, io.Closer) {
	lj := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}
	return slog.New(NewHandler(lj, minLevel)), lj
}

// Trace logs a message at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}
