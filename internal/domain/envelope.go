package domain

import (
	"time"
)

// Envelope - сериализованное представление одного вызова task.
//
// Envelope неизменяем после публикации. При retry публикуется копия
// с Retries+1, все остальные поля сохраняются.
type Envelope struct {
	// ID - идентификатор логического экземпляра task.
	// Не меняется между попытками.
	ID string `json:"id"`

	// RootID - ID головного звена chain (для одиночной task равен ID).
	RootID string `json:"root_id,omitempty"`

	// ParentID - ID предыдущего звена chain.
	ParentID string `json:"parent_id,omitempty"`

	// TaskName - имя task в реестре воркера.
	TaskName string `json:"task_name"`

	// Args - позиционные аргументы.
	Args []any `json:"args"`

	// Kwargs - именованные аргументы.
	Kwargs map[string]any `json:"kwargs"`

	// Retries - количество предыдущих попыток.
	// Единственное поле, которое меняет воркер.
	Retries int `json:"retries"`

	// Priority - приоритет сообщения (nil - без приоритета).
	Priority *int `json:"priority,omitempty"`

	// RoutingKey - очередь назначения.
	RoutingKey string `json:"routing_key"`

	// ETA - время, раньше которого task не должна выполняться.
	// Воркер только передаёт его дальше.
	ETA *time.Time `json:"eta,omitempty"`

	// Options - опции выполнения из Signature.
	Options Options `json:"options"`

	// Chain - оставшиеся звенья chain (continuation).
	Chain []Link `json:"chain,omitempty"`
}

// Options - опции выполнения task.
type Options struct {
	// Queue - переопределение очереди.
	Queue string `json:"queue,omitempty"`

	// Priority - приоритет.
	Priority *int `json:"priority,omitempty"`

	// Countdown - задержка в секундах относительно момента публикации.
	Countdown float64 `json:"countdown,omitempty"`

	// ETA - абсолютное время запуска.
	ETA *time.Time `json:"eta,omitempty"`

	// MaxRetries - максимум повторных попыток (nil - значение воркера).
	MaxRetries *int `json:"max_retries,omitempty"`

	// TimeLimit - ограничение времени выполнения в секундах (0 - нет).
	TimeLimit float64 `json:"time_limit,omitempty"`
}

// Link - сериализованное звено chain.
type Link struct {
	TaskName string         `json:"task_name"`
	Args     []any          `json:"args"`
	Kwargs   map[string]any `json:"kwargs"`
	Options  Options        `json:"options"`
}

// IsContinuation возвращает true, если после этой task есть следующие звенья.
func (e *Envelope) IsContinuation() bool {
	return len(e.Chain) > 0
}

// MaxRetries возвращает лимит повторов: из опций или fallback.
func (e *Envelope) MaxRetries(fallback int) int {
	if e.Options.MaxRetries != nil {
		return *e.Options.MaxRetries
	}
	return fallback
}

// CanRetry проверяет, осталась ли ещё попытка.
func (e *Envelope) CanRetry(maxRetries int) bool {
	return e.Retries < maxRetries
}

// WithRetry возвращает копию envelope для следующей попытки.
func (e *Envelope) WithRetry() *Envelope {
	next := *e
	next.Retries = e.Retries + 1
	next.Args = append([]any(nil), e.Args...)
	next.Kwargs = cloneMap(e.Kwargs)
	next.Chain = append([]Link(nil), e.Chain...)
	return &next
}

// TimeLimit возвращает ограничение времени выполнения.
func (e *Envelope) TimeLimit() time.Duration {
	if e.Options.TimeLimit <= 0 {
		return 0
	}
	return time.Duration(e.Options.TimeLimit * float64(time.Second))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
