package mq

import (
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Courier/internal/domain"
)

// ContentType - тип содержимого тела сообщения.
const ContentType = "application/json"

// Заголовки сообщения. Дублируют поля тела для наглядности в UI брокера.
const (
	HeaderID       = "id"
	HeaderTask     = "task"
	HeaderRetries  = "retries"
	HeaderRootID   = "root_id"
	HeaderParentID = "parent_id"

	// headerDeliveryCount выставляется брокером для quorum-очередей.
	headerDeliveryCount = "x-delivery-count"
)

// Encode сериализует envelope в AMQP сообщение.
//
// Тело - JSON envelope, сообщение persistent.
func Encode(env *domain.Envelope) (amqp.Publishing, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal envelope %s: %w", env.TaskName, err)
	}

	return amqp.Publishing{
		ContentType:  ContentType,
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт брокера
		MessageId:    env.ID,
		Timestamp:    time.Now().UTC(),
		Priority:     priorityByte(env.Priority),
		Headers: amqp.Table{
			HeaderID:       env.ID,
			HeaderTask:     env.TaskName,
			HeaderRetries:  int64(env.Retries),
			HeaderRootID:   env.RootID,
			HeaderParentID: env.ParentID,
		},
		Body: body,
	}, nil
}

// Decode восстанавливает envelope из доставленного сообщения.
//
// Счётчик доставок брокера (x-delivery-count) добавляется к Retries:
// повторная доставка после таймаута или requeue - тоже попытка.
func Decode(raw amqp.Delivery) (*domain.Envelope, error) {
	var env domain.Envelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if env.TaskName == "" {
		return nil, fmt.Errorf("%w: empty task_name", ErrMalformedMessage)
	}
	if env.Retries < 0 {
		return nil, fmt.Errorf("%w: negative retries", ErrMalformedMessage)
	}

	if env.Args == nil {
		env.Args = []any{}
	}
	if env.Kwargs == nil {
		env.Kwargs = map[string]any{}
	}
	if env.ID == "" {
		env.ID = raw.MessageId
	}

	env.Retries += deliveryCount(raw.Headers)

	return &env, nil
}

// deliveryCount извлекает x-delivery-count из заголовков.
func deliveryCount(headers amqp.Table) int {
	switch v := headers[headerDeliveryCount].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

// priorityByte приводит приоритет к диапазону AMQP (0..255).
func priorityByte(p *int) uint8 {
	if p == nil || *p <= 0 {
		return 0
	}
	if *p > 255 {
		return 255
	}
	return uint8(*p)
}
