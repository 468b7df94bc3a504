package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel - часть *amqp.Channel, которой пользуется Gateway.
//
// Позволяет подменять транспорт в тестах.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

// Transport - абстрактная возможность publish/consume поверх брокера.
//
// Реализуется *Connection. Фрейминг, heartbeats и reconnect - забота транспорта.
type Transport interface {
	// WithChannel выполняет fn с текущим каналом.
	WithChannel(ctx context.Context, fn func(ch Channel) error) error

	// ReconnectNotify сигнализирует о восстановлении соединения.
	ReconnectNotify() <-chan struct{}
}

var _ Channel = (*amqp.Channel)(nil)
