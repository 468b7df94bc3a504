package canvas

import "errors"

// Ошибки canvas.
var (
	// ErrEmptyChain - chain без звеньев.
	ErrEmptyChain = errors.New("chain has no signatures")

	// ErrEmptyTaskName - signature без имени task.
	ErrEmptyTaskName = errors.New("signature has empty task name")

	// ErrSerialization - аргументы или результат не сериализуются в JSON.
	// Всегда терминальная: повтор не сделает данные сериализуемыми.
	ErrSerialization = errors.New("payload is not serializable")
)
