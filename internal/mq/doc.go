// Package mq - Broker Gateway поверх RabbitMQ (amqp091-go).
//
// Структура:
//   - connection.go - соединение с брокером (reconnect, переоткрытие канала, graceful shutdown)
//   - channel.go    - абстракция транспорта (Channel, Transport) для подмены в тестах
//   - gateway.go    - Gateway и его режимы (client / worker)
//   - topology.go   - объявление очередей, exchange и dead-letter, аргументы очередей
//   - publisher.go  - публикация envelopes с таймаутом
//   - consumer.go   - потребление из нескольких очередей с prefetch
//   - delivery.go   - delivery с однократным ack/reject
//   - codec.go      - envelope ⇄ AMQP сообщение
//
// Аргументы очередей (только заданные опции):
//   - x-max-priority            - максимальный приоритет
//   - x-dead-letter-exchange    - DLX
//   - x-dead-letter-routing-key - <queue>.dead_letter
//   - x-consumer-timeout        - дедлайн ack в миллисекундах
//   - x-queue-type              - classic / quorum
//
// Producer (ModeClient) никогда не объявляет очереди: топология -
// забота воркера, и независимо развёрнутые producers не обязаны
// знать её аргументы.
package mq
