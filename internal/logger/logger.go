package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	// level is shared by every handler, so SetLevel takes effect without
	// rebuilding the handler.
	level = new(slog.LevelVar)

	mu       sync.RWMutex
	format   = "text"
	output   io.Writer = os.Stdout
	logFile  *os.File // set when output is a file opened by Init
	useColor bool
	slogger  *slog.Logger
)

func init() {
	useColor = isTerminal(os.Stdout.Fd())
	mu.Lock()
	rebuildLocked()
	mu.Unlock()
}

// rebuildLocked replaces the handler after an output or format change.
func rebuildLocked() {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		slogger = slog.New(slog.NewJSONHandler(output, opts))
		return
	}
	slogger = slog.New(NewColorTextHandler(output, opts, useColor))
}

// Init configures the logger. Output is "stdout", "stderr" or a file path;
// a file opened by a previous Init is closed once replaced.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, f, color, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}

		mu.Lock()
		prev := logFile
		output, logFile, useColor = w, f, color
		rebuildLocked()
		mu.Unlock()

		if prev != nil && prev != f {
			_ = prev.Close()
		}
	}

	SetLevel(cfg.Level)
	SetFormat(cfg.Format)
	return nil
}

func openOutput(dest string) (io.Writer, *os.File, bool, error) {
	switch strings.ToLower(dest) {
	case "stdout":
		return os.Stdout, nil, isTerminal(os.Stdout.Fd()), nil
	case "stderr":
		return os.Stderr, nil, isTerminal(os.Stderr.Fd()), nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to open log file %q: %w", dest, err)
	}
	return f, f, false, nil
}

// InitWithWriter routes logs to w. Used by tests.
func InitWithWriter(w io.Writer, lvl, fmtName string, enableColor bool) {
	mu.Lock()
	output, logFile, useColor = w, nil, enableColor
	rebuildLocked()
	mu.Unlock()

	SetLevel(lvl)
	SetFormat(fmtName)
}

// ParseLevel maps DEBUG, INFO, WARN or ERROR (any case) to a slog level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	if l, ok := ParseLevel(name); ok {
		level.Set(l)
	}
}

// SetFormat switches between "text" and "json". Unknown names are ignored.
func SetFormat(name string) {
	name = strings.ToLower(name)
	if name != "text" && name != "json" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if name == format {
		return
	}
	format = name
	rebuildLocked()
}

// CurrentLevel returns the active level name.
func CurrentLevel() string {
	return level.Level().String()
}

// CurrentFormat returns "text" or "json".
func CurrentFormat() string {
	mu.RLock()
	defer mu.RUnlock()
	return format
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func enabled(l slog.Level) bool {
	return l >= level.Level()
}

// Debug logs at debug level: Debug("msg", "key", value, ...)
func Debug(msg string, args ...any) {
	if enabled(slog.LevelDebug) {
		getLogger().Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if enabled(slog.LevelInfo) {
		getLogger().Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if enabled(slog.LevelWarn) {
		getLogger().Warn(msg, args...)
	}
}

func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// DebugCtx logs at debug level, prefixed with the LogContext fields of ctx
// (trace, request and run identifiers).
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if enabled(slog.LevelDebug) {
		getLogger().Debug(msg, FromContext(ctx).prepend(args)...)
	}
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	if enabled(slog.LevelInfo) {
		getLogger().Info(msg, FromContext(ctx).prepend(args)...)
	}
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	if enabled(slog.LevelWarn) {
		getLogger().Warn(msg, FromContext(ctx).prepend(args)...)
	}
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	getLogger().Error(msg, FromContext(ctx).prepend(args)...)
}
