package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - Prometheus метрики воркера и брокера.
//
// Все методы безопасны для nil-получателя: компоненты
// без метрик просто передают nil.
type Metrics struct {
	deliveries       *prometheus.CounterVec
	inFlight         prometheus.Gauge
	duration         *prometheus.HistogramVec
	published        *prometheus.CounterVec
	handleViolations prometheus.Counter
}

// NewMetrics регистрирует метрики в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_deliveries_total",
			Help: "Deliveries resolved by the worker, by queue and outcome.",
		}, []string{"queue", "outcome"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "courier_inflight_tasks",
			Help: "Task dispatches currently holding a concurrency slot.",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_task_duration_seconds",
			Help:    "Handler execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_publish_total",
			Help: "Messages published to the broker, by result.",
		}, []string{"result"}),
		handleViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "courier_handle_violations_total",
			Help: "Attempts to resolve an already resolved delivery.",
		}),
	}
}

// ObserveDelivery учитывает разрешённую delivery.
func (m *Metrics) ObserveDelivery(queue, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(queue, outcome).Inc()
}

// ObserveDuration учитывает время выполнения handler.
func (m *Metrics) ObserveDuration(task string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(task).Observe(d.Seconds())
}

// ObservePublish учитывает результат публикации: ok, timeout, error.
func (m *Metrics) ObservePublish(result string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(result).Inc()
}

// IncInFlight / DecInFlight отслеживают занятые слоты.
func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// HandleViolation учитывает повторное разрешение delivery.
func (m *Metrics) HandleViolation() {
	if m == nil {
		return
	}
	m.handleViolations.Inc()
}
