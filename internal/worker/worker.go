package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/task"
	"github.com/shaiso/Courier/internal/telemetry"
)

// Default configuration values.
const (
	DefaultConcurrency   = 10000
	DefaultMaxRetries    = 3
	DefaultShutdownGrace = 30 * time.Second
	DefaultQueue         = "default"

	maxPrefetch = 65535
)

// RetryMode - способ повторной постановки task.
type RetryMode int

const (
	// RetryRepublish публикует копию с retries+1 и подтверждает оригинал.
	RetryRepublish RetryMode = iota

	// RetryRequeue возвращает сообщение в очередь через reject.
	// Номер попытки берётся из заголовка x-delivery-count (quorum-очереди).
	RetryRequeue
)

// String возвращает строковое представление режима.
func (m RetryMode) String() string {
	if m == RetryRequeue {
		return "requeue"
	}
	return "republish"
}

// ParseRetryMode разбирает имя режима.
func ParseRetryMode(s string) (RetryMode, error) {
	switch s {
	case "", "republish":
		return RetryRepublish, nil
	case "requeue":
		return RetryRequeue, nil
	}
	return RetryRepublish, fmt.Errorf("unknown retry mode %q", s)
}

// Broker - операции Gateway, нужные воркеру.
type Broker interface {
	Declare(ctx context.Context, routingKey string) (mq.QueueHandle, error)
	Publish(ctx context.Context, env *domain.Envelope, routingKey string) error
	Consume(ctx context.Context, queues []string, prefetch int) (<-chan *mq.Delivery, <-chan error)
}

var _ Broker = (*mq.Gateway)(nil)

// Config - конфигурация Worker.
type Config struct {
	// Broker - gateway в режиме worker.
	Broker Broker

	// Registry - task, которые умеет выполнять воркер.
	Registry *task.Registry

	// Queues - очереди для потребления (default: [DefaultQueue]).
	Queues []string

	// Concurrency - максимум одновременно выполняемых task (default: 10000).
	Concurrency int

	// DefaultMaxRetries - лимит повторов, если в envelope нет max_retries (default: 3).
	DefaultMaxRetries *int

	// RetryMode - republish (default) или requeue.
	RetryMode RetryMode

	// RetryPolicy - задержка между попытками.
	RetryPolicy RetryPolicy

	// AckTimeout - дедлайн выполнения одной task (0 - без дедлайна).
	AckTimeout time.Duration

	// ShutdownGrace - сколько ждать выполняющиеся task при остановке (default: 30s).
	ShutdownGrace time.Duration

	// DefaultQueue - очередь для звеньев chain без явной очереди (default: "default").
	DefaultQueue string

	// Metrics - опционально.
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// Worker потребляет envelopes из очередей и выполняет task.
//
// Worker - stateless компонент:
//   - Ограничивает число одновременно выполняемых task (admission gate)
//   - Выполняет task через handler из реестра
//   - Публикует следующее звено chain перед подтверждением
//   - Повторяет упавшие task или отправляет их в dead-letter
//
// Workers масштабируются горизонтально - несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	broker   Broker
	registry *task.Registry

	queues        []string
	concurrency   int
	maxRetries    int
	retryMode     RetryMode
	retryPolicy   RetryPolicy
	ackTimeout    time.Duration
	shutdownGrace time.Duration
	defaultQueue  string

	metrics *telemetry.Metrics
	logger  *slog.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New создаёт Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Broker == nil {
		return nil, ErrNoBroker
	}
	if cfg.Registry == nil {
		return nil, ErrNoRegistry
	}

	concurrency := cfg.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, concurrency)
	}

	maxRetries := DefaultMaxRetries
	if cfg.DefaultMaxRetries != nil {
		maxRetries = max(0, *cfg.DefaultMaxRetries)
	}

	shutdownGrace := cfg.ShutdownGrace
	if shutdownGrace <= 0 {
		shutdownGrace = DefaultShutdownGrace
	}

	defaultQueue := cfg.DefaultQueue
	if defaultQueue == "" {
		defaultQueue = DefaultQueue
	}

	queues := cfg.Queues
	if len(queues) == 0 {
		queues = []string{defaultQueue}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		broker:        cfg.Broker,
		registry:      cfg.Registry,
		queues:        queues,
		concurrency:   concurrency,
		maxRetries:    maxRetries,
		retryMode:     cfg.RetryMode,
		retryPolicy:   cfg.RetryPolicy,
		ackTimeout:    cfg.AckTimeout,
		shutdownGrace: shutdownGrace,
		defaultQueue:  defaultQueue,
		metrics:       cfg.Metrics,
		logger:        logger.With("component", "worker"),
		sem:           semaphore.NewWeighted(int64(concurrency)),
	}, nil
}

// Queues возвращает очереди, из которых потребляет воркер.
func (w *Worker) Queues() []string {
	return append([]string(nil), w.queues...)
}

// Concurrency возвращает предел одновременно выполняемых task.
func (w *Worker) Concurrency() int {
	return w.concurrency
}

// Run объявляет очереди и потребляет их до отмены ctx.
//
// После отмены ctx воркер перестаёт брать новые сообщения и ждёт
// выполняющиеся task не дольше ShutdownGrace, затем отменяет их.
// Отменённые так deliveries остаются неподтверждёнными.
//
// Возвращает nil при штатной остановке или ErrTransportFatal,
// если транспорт не восстановился.
func (w *Worker) Run(ctx context.Context) error {
	for _, q := range w.queues {
		if _, err := w.broker.Declare(ctx, q); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	// Выполнение task переживает отмену ctx на время ShutdownGrace
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()

	consumeCtx, stopConsume := context.WithCancel(taskCtx)
	defer stopConsume()

	deliveries, errs := w.broker.Consume(consumeCtx, w.queues, min(w.concurrency, maxPrefetch))

	w.logger.Info("worker started",
		"queues", w.queues,
		"concurrency", w.concurrency,
		"retry_mode", w.retryMode.String(),
	)

	runErr := w.loop(ctx, taskCtx, deliveries, errs)

	stopConsume()
	w.drain(cancelTasks)

	w.logger.Info("worker stopped")
	return runErr
}

// loop - admission: слот берётся до получения следующего сообщения.
func (w *Worker) loop(ctx, taskCtx context.Context, deliveries <-chan *mq.Delivery, errs <-chan error) error {
	for {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			w.sem.Release(1)
			return nil

		case d, ok := <-deliveries:
			if !ok {
				w.sem.Release(1)
				if err := <-errs; err != nil {
					w.logger.Error("consume failed", "error", err)
					return err
				}
				return nil
			}
			if ctx.Err() != nil {
				w.sem.Release(1)
				w.abandon(d)
				return nil
			}

			w.logger.Debug("delivery received",
				"state", domain.DeliveryReceived.String(),
				"task", d.Envelope.TaskName,
				"task_id", d.Envelope.ID,
				"queue", d.Queue,
			)

			s := newSlot(func() { w.sem.Release(1) })
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.dispatch(taskCtx, d, s)
			}()
		}
	}
}

// slot - место в admission gate, занятое одной delivery.
//
// Владельцы: dispatch и горутина handler. Место освобождается,
// когда его отпустит последний владелец, поэтому handler,
// переживший дедлайн, продолжает занимать место.
type slot struct {
	owners  atomic.Int32
	release func()
}

func newSlot(release func()) *slot {
	s := &slot{release: release}
	s.owners.Store(1)
	return s
}

// hold добавляет владельца.
func (s *slot) hold() {
	if s != nil {
		s.owners.Add(1)
	}
}

// done отпускает слот.
func (s *slot) done() {
	if s != nil && s.owners.Add(-1) == 0 && s.release != nil {
		s.release()
	}
}

// drain ждёт выполняющиеся task, по истечении ShutdownGrace - отменяет их.
func (w *Worker) drain(cancelTasks context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(w.shutdownGrace)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
		w.logger.Warn("shutdown grace period expired, abandoning in-flight tasks",
			"grace", w.shutdownGrace,
		)
		cancelTasks()
		<-done
	}
}
