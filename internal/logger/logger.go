// Package logger is the process-wide structured logger. It wraps log/slog
// with a runtime-adjustable level, a colored text handler for terminals,
// and helpers that carry request-scoped fields through a context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

// Config selects the log level, format, and destination.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text or json
	Output string // stdout, stderr, or a file path
}

var (
	// level is shared by every handler built here, so SetLevel takes
	// effect without rebuilding the logger.
	level slog.LevelVar

	mu      sync.Mutex
	out     io.Writer = os.Stdout
	colored           = isatty.IsTerminal(os.Stdout.Fd())
	format            = "text"

	active atomic.Pointer[slog.Logger]
)

func init() {
	rebuild()
}

// parseLevel maps a config string onto a slog level.
func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return 0, false
}

// rebuild swaps in a logger reflecting the current settings. Callers other
// than init hold mu.
func rebuild() {
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: &level})
	} else {
		h = newTextHandler(out, &level, colored)
	}
	active.Store(slog.New(h))
}

// applyLevel and applyFormat ignore unknown names so a bad config value
// cannot silence the logger.
func applyLevel(name string) {
	if l, ok := parseLevel(name); ok {
		level.Set(l)
	}
}

func applyFormat(name string) {
	switch strings.ToLower(name) {
	case "text", "json":
		format = strings.ToLower(name)
	}
}

// Init points the logger at the configured destination.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		out = os.Stdout
		colored = isatty.IsTerminal(os.Stdout.Fd())
	case "stderr":
		out = os.Stderr
		colored = isatty.IsTerminal(os.Stderr.Fd())
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", cfg.Output, err)
		}
		out = f
		colored = false
	}

	applyLevel(cfg.Level)
	applyFormat(cfg.Format)
	rebuild()
	return nil
}

// InitWithWriter redirects logging to w. Tests use this to capture output.
func InitWithWriter(w io.Writer, levelName, formatName string, color bool) {
	mu.Lock()
	defer mu.Unlock()

	out = w
	colored = color
	applyLevel(levelName)
	applyFormat(formatName)
	rebuild()
}

// SetLevel adjusts the minimum level at runtime. Unknown names are ignored.
func SetLevel(name string) {
	applyLevel(name)
}

// SetFormat switches between text and json output. Unknown formats are
// ignored.
func SetFormat(name string) {
	mu.Lock()
	defer mu.Unlock()

	prev := format
	applyFormat(name)
	if format != prev {
		rebuild()
	}
}

func current() *slog.Logger {
	return active.Load()
}

// Debug logs at debug level with structured fields.
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// Info logs at info level with structured fields.
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// Warn logs at warn level with structured fields.
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// Error logs at error level with structured fields.
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// The Ctx variants prepend the request-scoped fields carried by the
// LogContext in ctx, if any.

func DebugCtx(ctx context.Context, msg string, args ...any) {
	current().Debug(msg, withContextFields(ctx, args)...)
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	current().Info(msg, withContextFields(ctx, args)...)
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	current().Warn(msg, withContextFields(ctx, args)...)
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	current().Error(msg, withContextFields(ctx, args)...)
}

// withContextFields puts the correlation fields first so they lead every
// log line for the request.
func withContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	fields := make([]any, 0, 8+len(args))
	if lc.RequestID != "" {
		fields = append(fields, KeyRequestID, lc.RequestID)
	}
	if lc.SessionID != "" {
		fields = append(fields, KeySessionID, lc.SessionID)
	}
	if lc.Username != "" {
		fields = append(fields, KeyUsername, lc.Username)
	}
	if lc.ClientIP != "" {
		fields = append(fields, KeyClientIP, lc.ClientIP)
	}
	return append(fields, args...)
}
