package worker

import "time"

// Стратегии backoff.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

const defaultMaxDelay = 30 * time.Second

// RetryPolicy - задержка перед повторной попыткой.
//
// Нулевое значение - повтор без задержки.
type RetryPolicy struct {
	// Backoff - "fixed" (default) или "exponential".
	Backoff string

	// InitialDelay - задержка перед первым повтором.
	InitialDelay time.Duration

	// MaxDelay - верхняя граница задержки (default: 30s).
	MaxDelay time.Duration
}

// Delay вычисляет задержку перед попыткой attempt (с 1).
//
//   - "exponential": delay = initialDelay * 2^(attempt-1), capped at maxDelay
//   - "fixed": delay = initialDelay
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}

	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	delay := p.InitialDelay
	if p.Backoff == BackoffExponential {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxDelay {
				break
			}
		}
	}

	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}
