package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// maxPrefetch - предел prefetch count в AMQP (short).
const maxPrefetch = 65535

// Consume запускает потребление из очередей queues.
//
// Возвращает поток deliveries и канал фатальной ошибки.
// Поток не ограничен и переживает переподключения транспорта.
// Он закрывается при отмене ctx или при ErrTransportFatal -
// во втором случае ошибка приходит в канал ошибок.
//
// prefetch ограничивает число неподтверждённых сообщений на канале
// (по всем очередям сразу): при заполнении брокер перестаёт отдавать сообщения.
func (g *Gateway) Consume(ctx context.Context, queues []string, prefetch int) (<-chan *Delivery, <-chan error) {
	out := make(chan *Delivery)
	errCh := make(chan error, 1)

	prefetch = max(1, min(prefetch, maxPrefetch))

	go func() {
		defer close(errCh)
		defer close(out)

		if err := g.consume(ctx, queues, prefetch, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// consume - основной цикл потребления.
func (g *Gateway) consume(ctx context.Context, queues []string, prefetch int, out chan<- *Delivery) error {
	var downSince time.Time

	for {
		if ctx.Err() != nil {
			return nil
		}

		sources, err := g.setupConsume(ctx, queues, prefetch)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if downSince.IsZero() {
				downSince = time.Now()
			}
			g.logger.Error("failed to setup consume", "queues", queues, "error", err)

			if err := g.awaitTransport(ctx, downSince); err != nil {
				return err
			}
			continue
		}

		downSince = time.Time{}
		g.logger.Info("consumer started", "queues", queues, "prefetch", prefetch)

		g.forward(ctx, sources, out)

		if ctx.Err() != nil {
			return nil
		}

		g.logger.Warn("deliveries channel closed, reconnecting", "queues", queues)
		downSince = time.Now()

		if err := g.awaitTransport(ctx, downSince); err != nil {
			return err
		}
	}
}

// awaitTransport ждёт переподключения или следующей попытки.
// Если транспорт недоступен дольше ReconnectTimeout - ErrTransportFatal.
func (g *Gateway) awaitTransport(ctx context.Context, downSince time.Time) error {
	left := g.cfg.ReconnectTimeout - time.Since(downSince)
	if left <= 0 {
		return fmt.Errorf("%w: unavailable for %s", ErrTransportFatal, g.cfg.ReconnectTimeout)
	}

	timer := time.NewTimer(min(left, g.retryInterval))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-g.transport.ReconnectNotify():
		g.logger.Info("reconnected, restarting consumer")
		return nil
	case <-timer.C:
		return nil
	}
}

// source - подписка на одну очередь.
type source struct {
	queue      string
	tag        string
	deliveries <-chan amqp.Delivery
}

// setupConsume настраивает prefetch и подписывается на все очереди.
func (g *Gateway) setupConsume(ctx context.Context, queues []string, prefetch int) ([]source, error) {
	var sources []source

	err := g.transport.WithChannel(ctx, func(ch Channel) error {
		// global=true: лимит на весь канал, а не на каждую очередь
		if err := ch.Qos(prefetch, 0, true); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}

		for _, q := range queues {
			tag := fmt.Sprintf("courier-%s-%s", q, uuid.NewString()[:8])

			deliveries, err := ch.Consume(
				q,     // queue
				tag,   // consumer tag
				false, // auto-ack (мы ack вручную)
				false, // exclusive
				false, // no-local
				false, // no-wait
				nil,   // args
			)
			if err != nil {
				cancelSources(ch, sources)
				return fmt.Errorf("consume %s: %w", q, err)
			}

			sources = append(sources, source{queue: q, tag: tag, deliveries: deliveries})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return sources, nil
}

// forward сводит сообщения всех очередей в out.
// Возвращается при отмене ctx или закрытии любой из подписок.
func (g *Gateway) forward(ctx context.Context, sources []source, out chan<- *Delivery) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	closed := make(chan string, len(sources))

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src source) {
			defer wg.Done()

			for {
				select {
				case <-fctx.Done():
					return

				case raw, ok := <-src.deliveries:
					if !ok {
						closed <- src.queue
						return
					}

					d, err := g.decodeDelivery(src.queue, raw)
					if err != nil {
						continue
					}

					select {
					case out <- d:
					case <-fctx.Done():
						// Без ack: брокер доставит сообщение повторно
						return
					}
				}
			}
		}(src)
	}

	select {
	case <-ctx.Done():
	case q := <-closed:
		g.logger.Warn("subscription closed", "queue", q)
	}

	cancel()
	wg.Wait()

	// Отписываемся, чтобы брокер перестал присылать новые сообщения.
	// Ошибку игнорируем: канал мог быть уже закрыт.
	_ = g.transport.WithChannel(context.Background(), func(ch Channel) error {
		cancelSources(ch, sources)
		return nil
	})
}

// decodeDelivery парсит сообщение.
// Некорректное сообщение отклоняется без requeue (уходит в DLX, если настроен).
func (g *Gateway) decodeDelivery(queue string, raw amqp.Delivery) (*Delivery, error) {
	env, err := Decode(raw)
	if err != nil {
		g.logger.Error("failed to decode message",
			"queue", queue,
			"message_id", raw.MessageId,
			"error", err,
			"body", truncate(string(raw.Body), 200),
		)
		if nerr := raw.Nack(false, false); nerr != nil && !errors.Is(nerr, amqp.ErrClosed) {
			g.logger.Warn("failed to reject malformed message", "queue", queue, "error", nerr)
		}
		g.metrics.ObserveDelivery(queue, "malformed")
		return nil, err
	}

	g.logger.Debug("received message",
		"queue", queue,
		"task", env.TaskName,
		"task_id", env.ID,
		"retries", env.Retries,
	)

	return NewDelivery(queue, env, raw), nil
}

func cancelSources(ch Channel, sources []source) {
	for _, s := range sources {
		_ = ch.Cancel(s.tag, false)
	}
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
