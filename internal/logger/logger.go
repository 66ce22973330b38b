// Package logger builds the slog logger used by the binary.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/modelweb/internal/env"
)

type options struct {
	logToFile bool
	logFile   string
	level     slog.Level
	console   io.Writer
}

// Option configures New.
type Option func(*options)

// WithLogToFile enables or disables the rotated log file.
func WithLogToFile(enabled bool) Option {
	return func(o *options) { o.logToFile = enabled }
}

// WithLogFile sets the rotated log file path.
func WithLogFile(path string) Option {
	return func(o *options) { o.logFile = path }
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *options) { o.level = level }
}

// WithConsole replaces stderr as the console destination.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// New returns a logger for environment e. Development logs are colored text
// on stderr, production logs are JSON. When file logging is on, JSON records
// are also written to a size-rotated file.
func New(e env.Environment, opts ...Option) *slog.Logger {
	o := options{
		logFile: filepath.Join("logs", "modelweb.log"),
		level:   slog.LevelInfo,
		console: os.Stderr,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var console slog.Handler
	if e.IsProduction() {
		console = slog.NewJSONHandler(o.console, &slog.HandlerOptions{Level: o.level})
	} else {
		console = tint.NewHandler(o.console, &tint.Options{
			Level:      o.level,
			TimeFormat: time.TimeOnly,
		})
	}

	if !o.logToFile || o.logFile == "" {
		return slog.New(console)
	}

	file := &lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	return slog.New(fanout{
		console,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.level}),
	})
}
