package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Courier/internal/canvas"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/task"
	"github.com/shaiso/Courier/internal/telemetry"
)

// outcome - результат выполнения handler.
type outcome struct {
	result any
	err    error
}

// dispatch выполняет одну delivery и разрешает её.
//
// Слот s освобождается, когда и dispatch, и горутина handler завершились.
// Возвращает итоговое состояние и ошибку разрешения
// (например, ErrAlreadyResolved).
func (w *Worker) dispatch(ctx context.Context, d *mq.Delivery, s *slot) (domain.DeliveryState, error) {
	defer s.done()

	env := d.Envelope
	logger := telemetry.WithTask(w.logger, env.TaskName, env.ID).With(
		"queue", d.Queue,
		"retries", env.Retries,
	)

	w.metrics.IncInFlight()
	defer w.metrics.DecInFlight()

	handler, err := w.registry.Get(env.TaskName)
	if err != nil {
		logger.Error("unknown task, rejecting", "error", err)
		return w.finish(d, logger, domain.DeliveryFailedTerminal, d.Reject(false))
	}

	logger.Debug("task started",
		"state", domain.DeliveryDispatched.String(),
		"redelivered", d.Redelivered,
	)

	start := time.Now()
	out, timedOut := w.execute(ctx, handler, env, s)
	w.metrics.ObserveDuration(env.TaskName, time.Since(start))

	if out.err == nil {
		return w.succeed(ctx, d, logger, out.result)
	}

	// Принудительная остановка воркера: delivery остаётся неподтверждённой
	if ctx.Err() != nil {
		return w.abandon(d), nil
	}

	return w.fail(ctx, d, logger, out.err, timedOut)
}

// execute запускает handler в отдельной горутине с дедлайном.
//
// timedOut=true, если дедлайн истёк раньше, чем handler вернул результат.
// Горутина handler удерживает слот s до своего завершения.
func (w *Worker) execute(ctx context.Context, h task.Handler, env *domain.Envelope, s *slot) (outcome, bool) {
	runCtx, cancel := w.runContext(ctx, env)
	defer cancel()

	runCtx = task.WithEnvelope(runCtx, env)
	runCtx = telemetry.WithLogger(runCtx, telemetry.WithTask(w.logger, env.TaskName, env.ID))

	done := make(chan outcome, 1)
	s.hold()
	go func() {
		defer s.done()
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrHandlerPanic, r)}
			}
		}()
		result, err := h.Run(runCtx, env.Args, env.Kwargs)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		timedOut := out.err != nil && ctx.Err() == nil &&
			errors.Is(runCtx.Err(), context.DeadlineExceeded)
		if timedOut {
			out.err = fmt.Errorf("%w: %v", ErrTimeLimitExceeded, out.err)
		}
		return out, timedOut

	case <-runCtx.Done():
		if ctx.Err() != nil {
			return outcome{err: ctx.Err()}, false
		}
		// Handler не уложился в дедлайн: delivery разрешается сразу,
		// результат игнорируется, слот занят до выхода handler
		return outcome{err: ErrTimeLimitExceeded}, true
	}
}

// runContext - контекст выполнения с дедлайном min(time_limit, AckTimeout).
func (w *Worker) runContext(ctx context.Context, env *domain.Envelope) (context.Context, context.CancelFunc) {
	limit := env.TimeLimit()
	if w.ackTimeout > 0 && (limit == 0 || w.ackTimeout < limit) {
		limit = w.ackTimeout
	}
	if limit > 0 {
		return context.WithTimeout(ctx, limit)
	}
	return context.WithCancel(ctx)
}

// succeed публикует следующее звено chain и подтверждает delivery.
func (w *Worker) succeed(ctx context.Context, d *mq.Delivery, logger *slog.Logger, result any) (domain.DeliveryState, error) {
	next, err := canvas.Next(d.Envelope, result)
	if err != nil {
		logger.Error("task result cannot continue chain", "error", err)
		return w.finish(d, logger, domain.DeliveryFailedTerminal, d.Reject(false))
	}

	if next != nil {
		routingKey := next.RoutingKey
		if routingKey == "" {
			routingKey = w.defaultQueue
		}

		if err := w.broker.Publish(ctx, next, routingKey); err != nil {
			logger.Warn("failed to publish chain continuation, requeueing",
				"next_task", next.TaskName,
				"error", err,
			)
			return w.finish(d, logger, domain.DeliveryFailedRetryable, d.Reject(true))
		}

		logger.Debug("chain continued",
			"next_task", next.TaskName,
			"next_id", next.ID,
			"routing_key", routingKey,
		)
	}

	logger.Info("task succeeded")
	return w.finish(d, logger, domain.DeliverySucceeded, d.Ack())
}

// fail решает: повторить task или отправить в dead-letter.
func (w *Worker) fail(ctx context.Context, d *mq.Delivery, logger *slog.Logger, taskErr error, timedOut bool) (domain.DeliveryState, error) {
	env := d.Envelope
	maxRetries := env.MaxRetries(w.maxRetries)

	if task.IsTerminal(taskErr) {
		logger.Warn("task failed, not retrying", "error", taskErr)
		return w.finish(d, logger, domain.DeliveryFailedTerminal, d.Reject(false))
	}

	if !env.CanRetry(maxRetries) {
		logger.Warn("task failed, retries exhausted",
			"max_retries", maxRetries,
			"error", fmt.Errorf("%w: %v", ErrRetryExhausted, taskErr),
		)
		return w.finish(d, logger, domain.DeliveryFailedTerminal, d.Reject(false))
	}

	state := domain.DeliveryFailedRetryable
	if timedOut {
		state = domain.DeliveryTimedOut
	}

	delay := w.retryPolicy.Delay(env.Retries + 1)

	logger.Warn("task failed, retrying",
		"attempt", env.Retries+1,
		"max_retries", maxRetries,
		"delay", delay,
		"error", taskErr,
	)

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return w.abandon(d), nil
		}
	}

	// Без x-delivery-count requeue не увеличит retries - только republish
	if w.retryMode == RetryRequeue {
		if d.BrokerCounted {
			return w.finish(d, logger, state, d.Reject(true))
		}
		logger.Debug("broker does not count deliveries, republishing retry")
	}

	if err := w.broker.Publish(ctx, env.WithRetry(), d.Queue); err != nil {
		logger.Warn("failed to republish retry, requeueing", "error", err)
		return w.finish(d, logger, state, d.Reject(true))
	}

	return w.finish(d, logger, state, d.Ack())
}

// finish учитывает результат разрешения delivery.
func (w *Worker) finish(d *mq.Delivery, logger *slog.Logger, state domain.DeliveryState, resolveErr error) (domain.DeliveryState, error) {
	switch {
	case resolveErr == nil:
		w.metrics.ObserveDelivery(d.Queue, state.Outcome())
		if !state.IsTerminal() {
			logger.Debug("delivery returned to queue", "state", state.String())
		}
	case errors.Is(resolveErr, mq.ErrAlreadyResolved):
		logger.Error("delivery resolved twice", "state", state.String(), "error", resolveErr)
		w.metrics.HandleViolation()
	default:
		// Канал закрыт - брокер доставит сообщение повторно
		logger.Warn("failed to resolve delivery", "state", state.String(), "error", resolveErr)
	}
	return state, resolveErr
}

// abandon оставляет delivery неподтверждённой.
func (w *Worker) abandon(d *mq.Delivery) domain.DeliveryState {
	w.logger.Warn("task abandoned",
		"task", d.Envelope.TaskName,
		"task_id", d.Envelope.ID,
		"queue", d.Queue,
	)
	w.metrics.ObserveDelivery(d.Queue, domain.DeliveryAbandoned.Outcome())
	return domain.DeliveryAbandoned
}
