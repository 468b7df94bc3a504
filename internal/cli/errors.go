package cli

import (
	"errors"
	"fmt"
)

// Коды завершения.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError - ошибка с кодом завершения процесса.
type ExitError struct {
	Code int
	Err  error
}

// Error реализует интерфейс error.
func (e *ExitError) Error() string {
	return e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// usageError - ошибка аргументов командной строки (exit 2).
func usageError(format string, args ...any) error {
	return &ExitError{Code: ExitUsage, Err: fmt.Errorf(format, args...)}
}

// ExitCode возвращает код завершения для ошибки команды.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
