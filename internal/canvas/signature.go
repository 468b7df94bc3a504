package canvas

import (
	"time"

	"github.com/shaiso/Courier/internal/domain"
)

// Signature - описание одного вызова task (или chain вызовов).
//
// Значение неизменяемо: конструкторы и композиция копируют данные
// и никогда не меняют операнды.
type Signature struct {
	taskName string
	args     []any
	kwargs   map[string]any
	options  domain.Options

	// links не пуст только для chain из двух и более звеньев.
	links []Signature
}

// Option настраивает опции выполнения Signature.
type Option func(*domain.Options)

// WithQueue переопределяет очередь назначения.
func WithQueue(queue string) Option {
	return func(o *domain.Options) { o.Queue = queue }
}

// WithPriority задаёт приоритет сообщения.
func WithPriority(priority int) Option {
	return func(o *domain.Options) { o.Priority = &priority }
}

// WithCountdown задаёт задержку запуска в секундах.
func WithCountdown(seconds float64) Option {
	return func(o *domain.Options) { o.Countdown = seconds }
}

// WithETA задаёт абсолютное время запуска.
func WithETA(eta time.Time) Option {
	return func(o *domain.Options) { o.ETA = &eta }
}

// WithMaxRetries задаёт лимит повторных попыток.
func WithMaxRetries(n int) Option {
	return func(o *domain.Options) { o.MaxRetries = &n }
}

// WithTimeLimit задаёт ограничение времени выполнения в секундах.
func WithTimeLimit(seconds float64) Option {
	return func(o *domain.Options) { o.TimeLimit = seconds }
}

// New создаёт Signature. Ввода-вывода нет.
func New(taskName string, args []any, kwargs map[string]any, opts ...Option) Signature {
	s := Signature{
		taskName: taskName,
		args:     cloneArgs(args),
		kwargs:   cloneKwargs(kwargs),
	}
	for _, opt := range opts {
		opt(&s.options)
	}
	return s
}

// FromLink восстанавливает Signature из звена continuation.
func FromLink(l domain.Link) Signature {
	return Signature{
		taskName: l.TaskName,
		args:     cloneArgs(l.Args),
		kwargs:   cloneKwargs(l.Kwargs),
		options:  l.Options,
	}
}

// TaskName возвращает имя task (для chain - имя головы).
func (s Signature) TaskName() string { return s.Head().taskName }

// Args возвращает копию позиционных аргументов головы.
func (s Signature) Args() []any { return cloneArgs(s.Head().args) }

// Kwargs возвращает копию именованных аргументов головы.
func (s Signature) Kwargs() map[string]any { return cloneKwargs(s.Head().kwargs) }

// Options возвращает опции головы.
func (s Signature) Options() domain.Options { return s.Head().options }

// IsChain возвращает true для chain из двух и более звеньев.
func (s Signature) IsChain() bool { return len(s.links) > 0 }

// Len возвращает количество звеньев.
func (s Signature) Len() int {
	if s.IsChain() {
		return len(s.links)
	}
	return 1
}

// Links возвращает звенья по порядку выполнения.
// Для одиночной signature - срез из неё самой.
func (s Signature) Links() []Signature {
	if !s.IsChain() {
		return []Signature{s}
	}
	return append([]Signature(nil), s.links...)
}

// Head возвращает первое звено.
func (s Signature) Head() Signature {
	if s.IsChain() {
		return s.links[0]
	}
	return s
}

// Then добавляет звенья в конец: s.Then(b, c) == Chain(s, b, c).
func (s Signature) Then(next ...Signature) (Signature, error) {
	return Chain(append([]Signature{s}, next...)...)
}

// Link сериализует одиночную signature в звено continuation.
func (s Signature) Link() domain.Link {
	h := s.Head()
	return domain.Link{
		TaskName: h.taskName,
		Args:     cloneArgs(h.args),
		Kwargs:   cloneKwargs(h.kwargs),
		Options:  h.options,
	}
}

// Chain объединяет signatures в одну упорядоченную последовательность.
//
// Вложенные chains разворачиваются. Пустой chain - ErrEmptyChain.
// Chain из одного звена эквивалентен самому звену.
func Chain(sigs ...Signature) (Signature, error) {
	var links []Signature
	for _, s := range sigs {
		links = append(links, s.Links()...)
	}

	switch len(links) {
	case 0:
		return Signature{}, ErrEmptyChain
	case 1:
		return links[0], nil
	default:
		return Signature{links: links}, nil
	}
}

func cloneArgs(args []any) []any {
	out := make([]any, len(args))
	copy(out, args)
	return out
}

func cloneKwargs(kwargs map[string]any) map[string]any {
	out := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		out[k] = v
	}
	return out
}
