package domain

// DeliveryState - состояние доставленного сообщения в воркере.
//
// Жизненный цикл:
//
//	RECEIVED → DISPATCHED → SUCCEEDED (ack)
//	                      ↘ FAILED_RETRYABLE (requeue / re-publish с retries+1)
//	                      ↘ FAILED_TERMINAL (reject, dead-letter)
//	                      ↘ TIMED_OUT (как FAILED_RETRYABLE, пока есть попытки)
//	          (shutdown) → ABANDONED (без ack, брокер доставит повторно)
type DeliveryState string

const (
	// DeliveryReceived - сообщение получено из очереди.
	DeliveryReceived DeliveryState = "RECEIVED"

	// DeliveryDispatched - handler запущен.
	DeliveryDispatched DeliveryState = "DISPATCHED"

	// DeliverySucceeded - handler завершился успешно, сообщение подтверждено.
	DeliverySucceeded DeliveryState = "SUCCEEDED"

	// DeliveryFailedRetryable - ошибка, будет ещё попытка.
	DeliveryFailedRetryable DeliveryState = "FAILED_RETRYABLE"

	// DeliveryFailedTerminal - ошибка без повтора, сообщение ушло в dead-letter.
	DeliveryFailedTerminal DeliveryState = "FAILED_TERMINAL"

	// DeliveryTimedOut - превышен дедлайн выполнения.
	DeliveryTimedOut DeliveryState = "TIMED_OUT"

	// DeliveryAbandoned - воркер остановился, не разрешив delivery.
	DeliveryAbandoned DeliveryState = "ABANDONED"
)

// IsTerminal возвращает true, если после этого состояния
// сообщение больше не будет выполняться воркером.
func (s DeliveryState) IsTerminal() bool {
	switch s {
	case DeliverySucceeded, DeliveryFailedTerminal:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление состояния.
func (s DeliveryState) String() string {
	return string(s)
}

// Outcome возвращает метку для метрик (lower-case).
func (s DeliveryState) Outcome() string {
	switch s {
	case DeliverySucceeded:
		return "succeeded"
	case DeliveryFailedRetryable:
		return "retried"
	case DeliveryFailedTerminal:
		return "failed"
	case DeliveryTimedOut:
		return "timed_out"
	case DeliveryAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}
