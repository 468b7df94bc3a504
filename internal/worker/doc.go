// Package worker выполняет task из очередей брокера.
//
// # Обзор
//
// Worker - stateless компонент системы Courier. Он потребляет envelopes
// из одной или нескольких очередей, находит handler по имени task,
// выполняет его и разрешает delivery ровно один раз:
//
//   - Успех → следующее звено chain публикуется, затем ack
//   - Терминальная ошибка или исчерпаны попытки → reject без requeue (dead-letter)
//   - Ошибка с оставшимися попытками → повтор (republish с retries+1 или requeue)
//
// Workers масштабируются горизонтально - несколько экземпляров
// потребляют из одной очереди.
//
// # Использование
//
//	w, err := worker.New(worker.Config{
//	    Broker:      gateway,
//	    Registry:    registry,
//	    Queues:      []string{"default", "emails"},
//	    Concurrency: 100,
//	    Logger:      logger,
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := w.Run(ctx); err != nil {
//	    return err
//	}
//
// # Admission
//
// Слот семафора (Concurrency) берётся до получения следующего сообщения
// и освобождается, когда delivery разрешена. Prefetch брокера равен
// min(Concurrency, 65535), поэтому воркер не забирает больше сообщений,
// чем может выполнить.
//
// # Retry
//
// Стратегии backoff:
//   - "exponential": delay = initialDelay * 2^(attempt-1), capped at maxDelay
//   - "fixed": delay = initialDelay
//
// Handler помечает ошибку как неповторяемую через task.Terminal.
// Паника handler'а и превышение дедлайна повторяются как обычные ошибки.
//
// # Остановка
//
// После отмены контекста Run перестаёт брать сообщения и ждёт
// выполняющиеся task не дольше ShutdownGrace. Оставшиеся task
// отменяются, их deliveries не подтверждаются и будут доставлены повторно.
package worker
