// Package app связывает конфигурацию, реестр task, gateway и воркер.
//
// App - единица, которую запускает CLI: набор task и настройки брокера.
// Приложения находятся по имени через Catalog.
package app

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
	"github.com/shaiso/Courier/internal/worker"
)

// transport - соединение, которое можно закрыть.
type transport interface {
	mq.Transport
	Close() error
}

// App - приложение Courier.
type App struct {
	name    string
	cfg     Config
	tasks   *task.Registry
	metrics *telemetry.Metrics
	logger  *slog.Logger

	dial func(url string, logger *slog.Logger) (transport, error)
}

// Option настраивает App.
type Option func(*App)

// WithLogger задаёт логгер приложения.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithMetrics задаёт метрики приложения.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New создаёт приложение с пустым реестром task.
func New(name string, cfg Config, opts ...Option) *App {
	a := &App{
		name:   name,
		cfg:    cfg,
		tasks:  task.NewRegistry(),
		logger: slog.Default(),
		dial: func(url string, logger *slog.Logger) (transport, error) {
			return mq.NewConnection(url, logger)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name возвращает имя приложения.
func (a *App) Name() string { return a.name }

// Config возвращает конфигурацию приложения.
func (a *App) Config() Config { return a.cfg }

// Tasks возвращает реестр task приложения.
func (a *App) Tasks() *task.Registry { return a.tasks }

// Connect открывает соединение с брокером и создаёт Gateway.
//
// topo дополняет параметры очередей из конфигурации
// (dead-letter exchange, ack timeout). Возвращённая функция закрывает соединение.
func (a *App) Connect(ctx context.Context, mode mq.Mode, topo mq.Topology) (*mq.Gateway, func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	conn, err := a.dial(a.cfg.BrokerURL, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to broker: %w", err)
	}

	base := a.cfg.Topology()
	if topo.MaxPriority == 0 {
		topo.MaxPriority = base.MaxPriority
	}
	if topo.QueueType == "" {
		topo.QueueType = base.QueueType
	}

	gw := mq.NewGateway(conn, mq.GatewayConfig{
		Mode:             mode,
		Topology:         topo,
		Exchange:         a.cfg.Exchange,
		ExchangeType:     a.cfg.ExchangeType,
		PublishTimeout:   a.cfg.PublishTimeout,
		ReconnectTimeout: a.cfg.ReconnectTimeout,
		Metrics:          a.metrics,
		Logger:           a.logger,
	})

	return gw, conn.Close, nil
}

// Publisher - публикация envelope (реализуется mq.Gateway).
type Publisher interface {
	Publish(ctx context.Context, env *domain.Envelope, routingKey string) error
}

// Send публикует signature (или chain) и возвращает отправленный envelope.
//
// Очередь берётся из опций первого звена, иначе - DefaultQueue.
func (a *App) Send(ctx context.Context, pub Publisher, sig canvas.Signature) (*domain.Envelope, error) {
	env, err := canvas.ToEnvelope(sig)
	if err != nil {
		return nil, err
	}

	routingKey := env.RoutingKey
	if routingKey == "" {
		routingKey = a.cfg.DefaultQueue
	}
	env.RoutingKey = routingKey

	if err := pub.Publish(ctx, env, routingKey); err != nil {
		return nil, fmt.Errorf("send %s: %w", env.TaskName, err)
	}

	a.logger.Debug("task sent",
		"task", env.TaskName,
		"task_id", env.ID,
		"queue", routingKey,
	)
	return env, nil
}

// WorkerOptions - параметры запуска воркера из командной строки.
type WorkerOptions struct {
	Queues      []string
	Concurrency int
	AckTimeout  time.Duration
}

// ErrNoTasks - у приложения нет зарегистрированных task.
var ErrNoTasks = errors.New("app has no registered tasks")

// NewWorker создаёт воркер приложения поверх broker.
func (a *App) NewWorker(broker worker.Broker, opts WorkerOptions) (*worker.Worker, error) {
	if a.tasks.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTasks, a.name)
	}

	maxRetries := a.cfg.DefaultMaxRetries

	return worker.New(worker.Config{
		Broker:            broker,
		Registry:          a.tasks,
		Queues:            opts.Queues,
		Concurrency:       opts.Concurrency,
		DefaultMaxRetries: &maxRetries,
		RetryMode:         a.cfg.RetryMode,
		RetryPolicy:       a.cfg.RetryPolicy,
		AckTimeout:        opts.AckTimeout,
		ShutdownGrace:     a.cfg.ShutdownGrace,
		DefaultQueue:      a.cfg.DefaultQueue,
		Metrics:           a.metrics,
		Logger:            a.logger,
	})
}
