package worker

import "errors"

// Ошибки воркера.
var (
	// ErrInvalidConcurrency - concurrency меньше 1.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")

	// ErrNoBroker - не передан broker.
	ErrNoBroker = errors.New("broker is required")

	// ErrNoRegistry - не передан реестр task.
	ErrNoRegistry = errors.New("task registry is required")

	// ErrHandlerPanic - handler завершился паникой.
	ErrHandlerPanic = errors.New("task handler panicked")

	// ErrTimeLimitExceeded - task не завершилась до дедлайна.
	ErrTimeLimitExceeded = errors.New("task time limit exceeded")

	// ErrRetryExhausted - все попытки retry исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)
