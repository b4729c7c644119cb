// Package logctx sets up the process-wide structured logger and a handful
// of helpers for attaching per-request fields to it.
package logctx

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ncubeanalytics/ingest/internal/config"
)

// Log is the process-wide logger, set up by Init/InitWithConfig before
// anything else runs.
var Log *slog.Logger

// Init sets up a bare stdout/JSON logger at the given level. Used by tests
// and anywhere a full config.LogConfig isn't available yet.
func Init(level string) {
	InitWithConfig(config.LogConfig{
		Level:  level,
		Format: "json",
		Output: "stdout",
	})
}

// InitWithConfig sets up Log from the service's [service.log] configuration,
// including file rotation via lumberjack when output is "file".
func InitWithConfig(cfg config.LogConfig) {
	var lvl slog.Level
	switch cfg.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var writer io.Writer
	switch cfg.Output {
	case "stderr":
		writer = os.Stderr
	case "file":
		path := cfg.FilePath
		if path == "" {
			path = "logs/ingest.log"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			writer = os.Stdout
		} else {
			writer = &lumberjack.Logger{
				Filename:   path,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}
		}
	default:
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	Log = slog.New(handler)
}

// WithRequestID returns a logger annotated with the given request id.
func WithRequestID(requestID string) *slog.Logger {
	return Log.With("request_id", requestID)
}

// WithSchema returns a logger annotated with the schema id a request was
// routed to.
func WithSchema(schemaID string) *slog.Logger {
	return Log.With("schema_id", schemaID)
}

// WithProducer returns a logger annotated with a named producer.
func WithProducer(name string) *slog.Logger {
	return Log.With("producer", name)
}

// Debug logs at debug level on the package logger.
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Info logs at info level on the package logger.
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Warn logs at warn level on the package logger.
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

// Error logs at error level on the package logger.
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}

// Fatal logs at error level and terminates the process. Only meant for
// startup failures in cmd/ingestd before the server is serving traffic.
func Fatal(msg string, args ...any) {
	Log.Error(msg, args...)
	os.Exit(1)
}
