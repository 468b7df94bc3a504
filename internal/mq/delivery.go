package mq

import (
	"fmt"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Courier/internal/domain"
)

// Delivery - доставленное сообщение с однократным разрешением.
//
// Ровно один из Ack/Reject может выполниться. Повторный вызов
// возвращает ErrAlreadyResolved и ничего не отправляет брокеру.
type Delivery struct {
	// Envelope - распарсенное сообщение.
	Envelope *domain.Envelope

	// Queue - очередь, из которой пришло сообщение.
	Queue string

	// Redelivered - брокер доставляет сообщение повторно.
	Redelivered bool

	// BrokerCounted - брокер ведёт счётчик доставок (x-delivery-count).
	BrokerCounted bool

	raw      amqp.Delivery
	resolved atomic.Bool
}

// NewDelivery связывает envelope с сырым AMQP сообщением.
func NewDelivery(queue string, env *domain.Envelope, raw amqp.Delivery) *Delivery {
	_, counted := raw.Headers[headerDeliveryCount]
	return &Delivery{
		Envelope:      env,
		Queue:         queue,
		Redelivered:   raw.Redelivered,
		BrokerCounted: counted,
		raw:           raw,
	}
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	if err := d.resolve("ack"); err != nil {
		return err
	}
	return d.raw.Ack(false)
}

// Reject отклоняет сообщение.
// requeue=true - вернуть в очередь, false - отправить в DLX (если настроен).
func (d *Delivery) Reject(requeue bool) error {
	if err := d.resolve("reject"); err != nil {
		return err
	}
	return d.raw.Nack(false, requeue)
}

// Resolved возвращает true, если delivery уже разрешена.
func (d *Delivery) Resolved() bool {
	return d.resolved.Load()
}

func (d *Delivery) resolve(op string) error {
	if !d.resolved.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s of %s (tag %d)", ErrAlreadyResolved, op, d.id(), d.raw.DeliveryTag)
	}
	return nil
}

func (d *Delivery) id() string {
	if d.Envelope != nil {
		return d.Envelope.ID
	}
	return d.raw.MessageId
}
