package canvas

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Courier/internal/domain"
)

// now подменяется в тестах.
var now = time.Now

// ToEnvelope сериализует signature в публикуемый Envelope.
//
// Голова chain становится самим envelope, остальные звенья
// сохраняются в Envelope.Chain. RoutingKey берётся из опции Queue
// головы и может быть пустым - тогда очередь выбирает вызывающий.
func ToEnvelope(sig Signature) (*domain.Envelope, error) {
	links := sig.Links()
	head := links[0]

	if head.taskName == "" {
		return nil, ErrEmptyTaskName
	}

	rest := make([]domain.Link, 0, len(links)-1)
	for _, l := range links[1:] {
		if l.taskName == "" {
			return nil, ErrEmptyTaskName
		}
		rest = append(rest, l.Link())
	}

	id := uuid.New().String()
	env := &domain.Envelope{
		ID:         id,
		RootID:     id,
		TaskName:   head.taskName,
		Args:       cloneArgs(head.args),
		Kwargs:     cloneKwargs(head.kwargs),
		Priority:   head.options.Priority,
		RoutingKey: head.options.Queue,
		ETA:        eta(head.options),
		Options:    head.options,
		Chain:      rest,
	}

	if err := checkSerializable(env); err != nil {
		return nil, err
	}

	return env, nil
}

// Next строит envelope следующего звена chain.
//
// result добавляется первым аргументом следующего звена.
// Возвращает nil, nil, если chain закончился.
func Next(env *domain.Envelope, result any) (*domain.Envelope, error) {
	if !env.IsContinuation() {
		return nil, nil
	}

	if _, err := json.Marshal(result); err != nil {
		return nil, fmt.Errorf("%w: result of %s: %v", ErrSerialization, env.TaskName, err)
	}

	link := env.Chain[0]
	args := make([]any, 0, len(link.Args)+1)
	args = append(args, result)
	args = append(args, link.Args...)

	rootID := env.RootID
	if rootID == "" {
		rootID = env.ID
	}

	next := &domain.Envelope{
		ID:         uuid.New().String(),
		RootID:     rootID,
		ParentID:   env.ID,
		TaskName:   link.TaskName,
		Args:       args,
		Kwargs:     cloneKwargs(link.Kwargs),
		Priority:   link.Options.Priority,
		RoutingKey: link.Options.Queue,
		ETA:        eta(link.Options),
		Options:    link.Options,
		Chain:      append([]domain.Link(nil), env.Chain[1:]...),
	}

	if err := checkSerializable(next); err != nil {
		return nil, err
	}

	return next, nil
}

// eta переводит countdown в абсолютное время.
func eta(o domain.Options) *time.Time {
	if o.ETA != nil {
		t := *o.ETA
		return &t
	}
	if o.Countdown > 0 {
		t := now().Add(time.Duration(o.Countdown * float64(time.Second))).UTC()
		return &t
	}
	return nil
}

func checkSerializable(env *domain.Envelope) error {
	if _, err := json.Marshal(env); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSerialization, env.TaskName, err)
	}
	return nil
}
