// Package logger builds the structured loggers used across the bot.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Setup returns a JSON slog.Logger writing to w at the given level.
func Setup(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Gorm adapts l for gorm.Config.Logger. Slow queries above 200ms are logged as warnings.
func Gorm(l *slog.Logger) gormlogger.Interface {
	return slogGorm.New(
		slogGorm.WithLogger(l),
		slogGorm.WithSlowThreshold(200*time.Millisecond),
	)
}
