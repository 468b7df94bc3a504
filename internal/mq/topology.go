package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Аргументы очереди (broker-native).
const (
	ArgMaxPriority          = "x-max-priority"
	ArgDeadLetterExchange   = "x-dead-letter-exchange"
	ArgDeadLetterRoutingKey = "x-dead-letter-routing-key"
	ArgConsumerTimeout      = "x-consumer-timeout"
	ArgQueueType            = "x-queue-type"
)

// DeadLetterSuffix - суффикс routing key для dead-letter сообщений.
const DeadLetterSuffix = ".dead_letter"

// Topology - параметры объявления очереди.
// Нулевое значение поля означает «не задано»: аргумент не попадает к брокеру.
type Topology struct {
	// MaxPriority - x-max-priority (0 отключает приоритеты).
	MaxPriority int

	// DeadLetterExchange - x-dead-letter-exchange.
	DeadLetterExchange string

	// AckTimeout - дедлайн подтверждения в секундах (x-consumer-timeout).
	AckTimeout int

	// QueueType - x-queue-type: "classic" или "quorum".
	QueueType string

	// DeclareDeadLetterQueues - объявлять DLX и очередь <queue>.dead_letter.
	DeclareDeadLetterQueues bool
}

// QueueHandle - объявленная очередь.
type QueueHandle struct {
	Name      string
	Args      amqp.Table
	Messages  int
	Consumers int
}

// DeadLetterRoutingKey возвращает routing key dead-letter сообщений очереди.
func DeadLetterRoutingKey(queue string) string {
	return queue + DeadLetterSuffix
}

// AckTimeoutMillis переводит секунды в миллисекунды x-consumer-timeout.
func AckTimeoutMillis(seconds int) int64 {
	return int64(seconds) * 1000
}

// QueueArgs строит аргументы объявления очереди.
//
// Возвращает nil, если ни одна опция не задана.
func QueueArgs(queue string, t Topology) amqp.Table {
	args := amqp.Table{}

	if t.MaxPriority > 0 {
		args[ArgMaxPriority] = int64(t.MaxPriority)
	}

	if t.DeadLetterExchange != "" {
		args[ArgDeadLetterExchange] = t.DeadLetterExchange
		args[ArgDeadLetterRoutingKey] = DeadLetterRoutingKey(queue)
	}

	if t.AckTimeout > 0 {
		args[ArgConsumerTimeout] = AckTimeoutMillis(t.AckTimeout)
	}

	if t.QueueType != "" {
		args[ArgQueueType] = t.QueueType
	}

	if len(args) == 0 {
		return nil
	}
	return args
}

// Declare объявляет очередь с топологией gateway по умолчанию.
func (g *Gateway) Declare(ctx context.Context, routingKey string) (QueueHandle, error) {
	return g.DeclareWith(ctx, routingKey, g.cfg.Topology)
}

// DeclareWith объявляет очередь routingKey не более одного раза за жизнь Gateway.
//
// Конкурентные вызовы для одного ключа схлопываются в одно объявление:
// первый вызов объявляет, остальные ждут его результата.
// Каждый вызов ждёт не дольше своего ctx, отмена одного не прерывает
// общее объявление. Ошибка не запоминается - следующий вызов попробует снова.
func (g *Gateway) DeclareWith(ctx context.Context, routingKey string, t Topology) (QueueHandle, error) {
	if routingKey == "" {
		return QueueHandle{}, ErrNoRoutingKey
	}

	if q, ok := g.declaredQueue(routingKey); ok {
		return q, nil
	}

	v, err := g.shared(ctx, "queue:"+routingKey, func(ctx context.Context) (any, error) {
		// Повторная проверка: объявление могло завершиться до входа в группу
		if q, ok := g.declaredQueue(routingKey); ok {
			return q, nil
		}

		q, err := g.declareQueue(ctx, routingKey, t)
		if err != nil {
			return nil, err
		}

		g.mu.Lock()
		g.declared[routingKey] = q
		g.mu.Unlock()

		g.logger.Info("queue declared",
			"queue", routingKey,
			"args", q.Args,
			"exchange", g.cfg.Exchange,
		)

		return q, nil
	})
	if err != nil {
		return QueueHandle{}, err
	}

	return v.(QueueHandle), nil
}

// shared выполняет fn один раз на ключ среди конкурентных вызовов.
//
// fn получает контекст без отмены вызывающего, ограниченный declareTimeout.
func (g *Gateway) shared(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	res := g.group.DoChan(key, func() (any, error) {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), declareTimeout)
		defer cancel()
		return fn(opCtx)
	})

	select {
	case r := <-res:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) declaredQueue(routingKey string) (QueueHandle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	q, ok := g.declared[routingKey]
	return q, ok
}

// declareQueue выполняет declare/bind на брокере.
func (g *Gateway) declareQueue(ctx context.Context, routingKey string, t Topology) (QueueHandle, error) {
	if g.cfg.Exchange != "" {
		if err := g.ensureExchange(ctx); err != nil {
			return QueueHandle{}, err
		}
	}

	args := QueueArgs(routingKey, t)
	var handle QueueHandle

	err := g.transport.WithChannel(ctx, func(ch Channel) error {
		if t.DeadLetterExchange != "" && t.DeclareDeadLetterQueues {
			if err := declareDeadLetter(ch, routingKey, t.DeadLetterExchange); err != nil {
				return err
			}
		}

		q, err := ch.QueueDeclare(
			routingKey, // name
			true,       // durable
			false,      // delete when unused
			false,      // exclusive
			false,      // no-wait
			args,       // arguments
		)
		if err != nil {
			return fmt.Errorf("%w: declare queue %s: %v", ErrTopology, routingKey, err)
		}

		if g.cfg.Exchange != "" {
			err := ch.QueueBind(
				routingKey,     // queue name
				routingKey,     // routing key
				g.cfg.Exchange, // exchange
				false,          // no-wait
				nil,            // arguments
			)
			if err != nil {
				return fmt.Errorf("%w: bind queue %s to %s: %v", ErrTopology, routingKey, g.cfg.Exchange, err)
			}
		}

		handle = QueueHandle{
			Name:      q.Name,
			Args:      args,
			Messages:  q.Messages,
			Consumers: q.Consumers,
		}
		return nil
	})
	if err != nil {
		return QueueHandle{}, err
	}

	return handle, nil
}

// ensureExchange лениво объявляет exchange при первом использовании.
func (g *Gateway) ensureExchange(ctx context.Context) error {
	g.mu.RLock()
	done := g.exchangeDeclared
	g.mu.RUnlock()
	if done {
		return nil
	}

	_, err := g.shared(ctx, "exchange:"+g.cfg.Exchange, func(ctx context.Context) (any, error) {
		g.mu.RLock()
		done := g.exchangeDeclared
		g.mu.RUnlock()
		if done {
			return nil, nil
		}

		err := g.transport.WithChannel(ctx, func(ch Channel) error {
			err := ch.ExchangeDeclare(
				g.cfg.Exchange,     // name
				g.cfg.ExchangeType, // type
				true,               // durable
				false,              // auto-deleted
				false,              // internal
				false,              // no-wait
				nil,                // arguments
			)
			if err != nil {
				return fmt.Errorf("%w: declare exchange %s: %v", ErrTopology, g.cfg.Exchange, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		g.mu.Lock()
		g.exchangeDeclared = true
		g.mu.Unlock()

		return nil, nil
	})

	return err
}

// declareDeadLetter объявляет DLX и очередь <queue>.dead_letter.
func declareDeadLetter(ch Channel, queue, dlx string) error {
	dlq := DeadLetterRoutingKey(queue)

	if err := ch.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("%w: declare dead-letter exchange %s: %v", ErrTopology, dlx, err)
	}

	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%w: declare dead-letter queue %s: %v", ErrTopology, dlq, err)
	}

	if err := ch.QueueBind(dlq, dlq, dlx, false, nil); err != nil {
		return fmt.Errorf("%w: bind dead-letter queue %s to %s: %v", ErrTopology, dlq, dlx, err)
	}

	return nil
}
