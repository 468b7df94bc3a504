package mq

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shaiso/Courier/internal/telemetry"
)

// Mode - режим работы Gateway.
type Mode int

const (
	// ModeClient - только producer: очереди никогда не объявляются.
	// Продюсер полагается на то, что очередь уже объявил воркер.
	ModeClient Mode = iota

	// ModeWorker - воркер: очереди объявляются перед consume
	// и лениво перед первой публикацией.
	ModeWorker
)

// String возвращает строковое представление режима.
func (m Mode) String() string {
	if m == ModeWorker {
		return "worker"
	}
	return "client"
}

// Default configuration values.
const (
	defaultExchangeType     = "direct"
	defaultReconnectTimeout = 5 * time.Minute
	defaultRetryInterval    = time.Second
	declareTimeout          = 30 * time.Second
)

// GatewayConfig - конфигурация Gateway.
type GatewayConfig struct {
	// Mode - client или worker.
	Mode Mode

	// Topology - параметры очередей по умолчанию.
	Topology Topology

	// Exchange - exchange для публикации (пусто - default exchange).
	Exchange string

	// ExchangeType - тип exchange (default: direct).
	ExchangeType string

	// PublishTimeout - таймаут публикации (0 - без таймаута).
	PublishTimeout time.Duration

	// ReconnectTimeout - сколько consume ждёт восстановления транспорта
	// перед ErrTransportFatal (default: 5m).
	ReconnectTimeout time.Duration

	// Metrics - опционально.
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// Gateway - топология и транспорт сообщений, независимо от семантики task.
//
// Gateway:
//   - Объявляет очереди (и exchange) не более одного раза
//   - Публикует envelopes
//   - Потребляет сообщения из нескольких очередей
type Gateway struct {
	transport Transport
	cfg       GatewayConfig
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	// declared только пополняется: очередь не объявляется повторно
	// и не удаляется из множества.
	mu               sync.RWMutex
	declared         map[string]QueueHandle
	exchangeDeclared bool
	group            singleflight.Group

	retryInterval time.Duration
}

// NewGateway создаёт Gateway поверх транспорта.
func NewGateway(transport Transport, cfg GatewayConfig) *Gateway {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = defaultExchangeType
	}
	if cfg.ReconnectTimeout <= 0 {
		cfg.ReconnectTimeout = defaultReconnectTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		transport:     transport,
		cfg:           cfg,
		logger:        logger.With("component", "gateway", "mode", cfg.Mode.String()),
		metrics:       cfg.Metrics,
		declared:      make(map[string]QueueHandle),
		retryInterval: defaultRetryInterval,
	}
}

// Mode возвращает режим Gateway.
func (g *Gateway) Mode() Mode {
	return g.cfg.Mode
}

// Connected проверяет соединение с брокером.
// Транспорт без проверки состояния считается подключённым.
func (g *Gateway) Connected() bool {
	if c, ok := g.transport.(interface{ IsConnected() bool }); ok {
		return c.IsConnected()
	}
	return true
}

func (g *Gateway) isClient() bool {
	return g.cfg.Mode == ModeClient
}
