package mq

import "errors"

// Ошибки брокера.
var (
	// ErrTopology - брокер отклонил declare/bind (например, конфликт аргументов очереди).
	// Не повторяется локально.
	ErrTopology = errors.New("topology declaration rejected")

	// ErrPublishTimeout - публикация не уложилась в таймаут.
	// Повтор - решение вызывающего.
	ErrPublishTimeout = errors.New("publish timeout")

	// ErrTransportFatal - соединение с брокером не восстановилось.
	ErrTransportFatal = errors.New("broker transport failed")

	// ErrAlreadyResolved - повторный ack/reject одной и той же delivery.
	ErrAlreadyResolved = errors.New("delivery already resolved")

	// ErrMalformedMessage - тело сообщения не является envelope.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrNoChannel - AMQP канал недоступен.
	ErrNoChannel = errors.New("no channel available")

	// ErrNoRoutingKey - не указана очередь назначения.
	ErrNoRoutingKey = errors.New("routing key is required")
)
