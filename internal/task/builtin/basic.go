package builtin

import (
	"context"
	"time"

	"github.com/shaiso/Courier/internal/task"
)

// Delay - task "delay".
//
// Ожидает duration_sec секунд (kwargs или первый аргумент, default 1).
// Поддерживает отмену через context.
func Delay(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	duration := getSeconds(kwargs, "duration_sec", 0)
	if duration == 0 && len(args) > 0 {
		if f, ok := toFloat(args[0]); ok && f > 0 {
			duration = time.Duration(f * float64(time.Second))
		}
	}
	if duration <= 0 {
		duration = time.Second
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]any{"delayed_sec": duration.Seconds()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Echo - task "echo": pass-through аргументов.
func Echo(_ context.Context, args []any, kwargs map[string]any) (any, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return map[string]any{
		"args":   args,
		"kwargs": kwargs,
	}, nil
}

// Add - task "math.add": сумма числовых аргументов.
//
// В chain результат предыдущего звена становится первым аргументом,
// поэтому add(2, 2) | add(4) даёт 8.
func Add(_ context.Context, args []any, _ map[string]any) (any, error) {
	var sum float64
	for i, arg := range args {
		f, ok := toFloat(arg)
		if !ok {
			return nil, task.Terminalf("math.add: argument %d is %T, not a number", i, arg)
		}
		sum += f
	}
	return sum, nil
}
