package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/worker"
)

// ErrInvalidConfig - некорректное значение переменной окружения.
var ErrInvalidConfig = errors.New("invalid config")

const defaultPublishTimeout = 10 * time.Second

// Config - настройки приложения.
type Config struct {
	// BrokerURL - AMQP URL (BROKER_URL).
	BrokerURL string

	// PublishTimeout - таймаут публикации (BROKER_PUBLISH_TIMEOUT, default 10s).
	PublishTimeout time.Duration

	// ReconnectTimeout - сколько ждать восстановления транспорта (BROKER_RECONNECT_TIMEOUT).
	ReconnectTimeout time.Duration

	// Exchange / ExchangeType - exchange для публикации (BROKER_EXCHANGE, BROKER_EXCHANGE_TYPE).
	Exchange     string
	ExchangeType string

	// DefaultQueue - очередь по умолчанию (TASK_DEFAULT_QUEUE, default "default").
	DefaultQueue string

	// MaxPriority - x-max-priority очередей (TASK_QUEUE_MAX_PRIORITY).
	MaxPriority int

	// QueueType - x-queue-type (TASK_QUEUE_TYPE).
	QueueType string

	// DefaultMaxRetries - лимит повторов (TASK_DEFAULT_MAX_RETRIES, default 3).
	DefaultMaxRetries int

	// RetryMode - republish или requeue (TASK_RETRY_MODE).
	RetryMode worker.RetryMode

	// RetryPolicy - TASK_RETRY_BACKOFF, TASK_RETRY_INITIAL_DELAY, TASK_RETRY_MAX_DELAY.
	RetryPolicy worker.RetryPolicy

	// ShutdownGrace - WORKER_SHUTDOWN_GRACE (default 30s).
	ShutdownGrace time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		BrokerURL:         mq.DefaultURL(),
		PublishTimeout:    defaultPublishTimeout,
		DefaultQueue:      worker.DefaultQueue,
		DefaultMaxRetries: worker.DefaultMaxRetries,
		RetryMode:         worker.RetryRepublish,
		RetryPolicy:       worker.RetryPolicy{Backoff: worker.BackoffFixed},
		ShutdownGrace:     worker.DefaultShutdownGrace,
	}
}

// LoadConfig читает конфигурацию из переменных окружения.
func LoadConfig() (Config, error) {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%w: %s=%q: want non-negative integer", ErrInvalidConfig, key, v))
			return
		}
		*dst = n
	}
	duration := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s=%q: want duration like 10s", ErrInvalidConfig, key, v))
			return
		}
		*dst = d
	}

	str("BROKER_URL", &cfg.BrokerURL)
	duration("BROKER_PUBLISH_TIMEOUT", &cfg.PublishTimeout)
	duration("BROKER_RECONNECT_TIMEOUT", &cfg.ReconnectTimeout)
	str("BROKER_EXCHANGE", &cfg.Exchange)
	str("BROKER_EXCHANGE_TYPE", &cfg.ExchangeType)
	str("TASK_DEFAULT_QUEUE", &cfg.DefaultQueue)
	integer("TASK_QUEUE_MAX_PRIORITY", &cfg.MaxPriority)
	str("TASK_QUEUE_TYPE", &cfg.QueueType)
	integer("TASK_DEFAULT_MAX_RETRIES", &cfg.DefaultMaxRetries)
	str("TASK_RETRY_BACKOFF", &cfg.RetryPolicy.Backoff)
	duration("TASK_RETRY_INITIAL_DELAY", &cfg.RetryPolicy.InitialDelay)
	duration("TASK_RETRY_MAX_DELAY", &cfg.RetryPolicy.MaxDelay)
	duration("WORKER_SHUTDOWN_GRACE", &cfg.ShutdownGrace)

	if v := getenv("TASK_RETRY_MODE"); v != "" {
		mode, err := worker.ParseRetryMode(strings.ToLower(strings.TrimSpace(v)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: TASK_RETRY_MODE: %v", ErrInvalidConfig, err))
		}
		cfg.RetryMode = mode
	}

	switch cfg.RetryPolicy.Backoff {
	case worker.BackoffFixed, worker.BackoffExponential:
	default:
		errs = append(errs, fmt.Errorf("%w: TASK_RETRY_BACKOFF=%q: want fixed or exponential", ErrInvalidConfig, cfg.RetryPolicy.Backoff))
	}

	switch cfg.QueueType {
	case "", "classic", "quorum":
	default:
		errs = append(errs, fmt.Errorf("%w: TASK_QUEUE_TYPE=%q: want classic or quorum", ErrInvalidConfig, cfg.QueueType))
	}

	// Без x-delivery-count (только quorum) requeue не увеличивает retries
	if cfg.RetryMode == worker.RetryRequeue && cfg.QueueType != "quorum" {
		errs = append(errs, fmt.Errorf("%w: TASK_RETRY_MODE=requeue: requires TASK_QUEUE_TYPE=quorum", ErrInvalidConfig))
	}

	if cfg.MaxPriority > 255 {
		errs = append(errs, fmt.Errorf("%w: TASK_QUEUE_MAX_PRIORITY=%d: want 0..255", ErrInvalidConfig, cfg.MaxPriority))
	}

	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	return cfg, nil
}

// Topology возвращает параметры очередей из конфигурации.
func (c Config) Topology() mq.Topology {
	return mq.Topology{
		MaxPriority: c.MaxPriority,
		QueueType:   c.QueueType,
	}
}
