package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel определяет уровень логирования из переменной окружения.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// ParseLevel переводит строку уровня в slog.Level без учёта регистра.
// Неизвестные значения дают INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию): JSON формат для production
//   - "text": человекочитаемый формат для разработки
//
// Логи пишутся в stderr: stdout занят выводом команд CLI (таблицы, --json).
func SetupLogger() *slog.Logger {
	logger := NewLogger(os.Stderr, LogLevel(), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер с заданным уровнем и форматом ("text" или "json").
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

// Discard возвращает логгер, который ничего не пишет.
// Используется по умолчанию, когда логгер не передан.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger: ключ для логгера в контексте.
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

// WithJob возвращает логгер с добавленным именем задачи.
func WithJob(logger *slog.Logger, jobName string) *slog.Logger {
	return logger.With("job", jobName)
}

// WithHolder возвращает логгер с добавленным holder_id.
func WithHolder(logger *slog.Logger, holderID string) *slog.Logger {
	return logger.With("holder_id", holderID)
}
