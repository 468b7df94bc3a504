// Package task - реестр task: имя → handler.
//
// Воркер только ищет handler по имени; регистрацией занимается
// приложение (см. internal/app).
package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Courier/internal/domain"
)

// ErrUnknownTask - для имени task нет зарегистрированного handler.
var ErrUnknownTask = errors.New("unknown task")

// Handler выполняет task.
//
// Возвращаемое значение должно сериализоваться в JSON: оно становится
// первым аргументом следующего звена chain.
// ctx отменяется при превышении дедлайна или остановке воркера.
type Handler interface {
	Run(ctx context.Context, args []any, kwargs map[string]any) (any, error)
}

// HandlerFunc - адаптер функции к Handler.
type HandlerFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Run вызывает f.
func (f HandlerFunc) Run(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	return f(ctx, args, kwargs)
}

// TerminalError - ошибка, после которой task не повторяется.
type TerminalError struct {
	Err error
}

// Error реализует интерфейс error.
func (e *TerminalError) Error() string {
	return "terminal: " + e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Terminal помечает ошибку как не подлежащую повтору
// (например, заведомо некорректный ввод).
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// Terminalf - Terminal(fmt.Errorf(...)).
func Terminalf(format string, args ...any) error {
	return Terminal(fmt.Errorf(format, args...))
}

// IsTerminal проверяет, помечена ли ошибка как терминальная.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

type ctxKey struct{}

// WithEnvelope кладёт текущий envelope в контекст handler.
func WithEnvelope(ctx context.Context, env *domain.Envelope) context.Context {
	return context.WithValue(ctx, ctxKey{}, env)
}

// EnvelopeFromContext возвращает envelope выполняемой task.
// Handler может узнать, например, номер попытки.
func EnvelopeFromContext(ctx context.Context) (*domain.Envelope, bool) {
	env, ok := ctx.Value(ctxKey{}).(*domain.Envelope)
	return env, ok
}
