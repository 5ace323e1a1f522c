package recgo

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with recgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithFolder adds a snapshot folder field to the logger.
func (l *Logger) WithFolder(folder string) *Logger {
	return &Logger{
		Logger: l.Logger.With("folder", folder),
	}
}

// WithPlaylist adds a playlist id field to the logger.
func (l *Logger) WithPlaylist(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("playlist", id),
	}
}

// WithK adds a k (result count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// LogFit logs a fit operation.
func (l *Logger) LogFit(ctx context.Context, playlists, artists int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "fit failed",
			"playlists", playlists,
			"artists", artists,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "fit completed",
			"playlists", playlists,
			"artists", artists,
			"duration", duration,
		)
	}
}

// LogSave logs a completed (or failed) snapshot write.
func (l *Logger) LogSave(ctx context.Context, folder, id string, async bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"folder", folder,
			"commit", id,
			"async", async,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"folder", folder,
			"commit", id,
			"async", async,
		)
	}
}

// LogLoad logs a snapshot load.
func (l *Logger) LogLoad(ctx context.Context, folder string, playlists, artists int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"folder", folder,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot loaded",
			"folder", folder,
			"playlists", playlists,
			"artists", artists,
		)
	}
}

// LogProcess logs a pipeline call.
func (l *Logger) LogProcess(ctx context.Context, playlist string, resolved int, registered bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "process failed",
			"playlist", playlist,
			"resolved", resolved,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "process completed",
			"playlist", playlist,
			"resolved", resolved,
			"registered", registered,
		)
	}
}
