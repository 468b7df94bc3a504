package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelNames - допустимые значения уровня логирования для CLI.
var LevelNames = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL", "FATAL"}

// ParseLevel переводит имя уровня в slog.Level.
// CRITICAL и FATAL выше ERROR.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL", "FATAL":
		return slog.LevelError + 4, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// LogLevel определяет уровень логирования из переменной окружения LOG_LEVEL.
// По умолчанию: INFO
func LogLevel() slog.Level {
	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) - JSON формат для production
//   - "text" - человекочитаемый формат для разработки
func SetupLogger(level slog.Level) *slog.Logger {
	logger := NewLogger(os.Stdout, level, os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер без изменения глобального.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger - ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithTask возвращает логгер с полями task.
func WithTask(logger *slog.Logger, taskName, taskID string) *slog.Logger {
	return logger.With("task", taskName, "task_id", taskID)
}
