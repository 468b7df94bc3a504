package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerInfo - параметры запущенного воркера.
type WorkerInfo struct {
	App         string   `json:"app"`
	Version     string   `json:"version"`
	Queues      []string `json:"queues"`
	Concurrency int      `json:"concurrency"`
}

// TaskLister - источник имён task (реализуется task.Registry).
type TaskLister interface {
	Names() []string
}

// BrokerChecker - состояние соединения с брокером (реализуется mq.Gateway).
type BrokerChecker interface {
	Connected() bool
}

// Handler - обработчик служебного API с зависимостями.
type Handler struct {
	info     WorkerInfo
	tasks    TaskLister
	broker   BrokerChecker
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Config - конфигурация для создания Handler.
type Config struct {
	Info     WorkerInfo
	Tasks    TaskLister
	Broker   BrokerChecker
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Handler{
		info:     cfg.Info,
		tasks:    cfg.Tasks,
		broker:   cfg.Broker,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Healthz - liveness probe. 503, пока нет соединения с брокером.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if h.broker != nil && !h.broker.Connected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("broker disconnected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// GetWorker возвращает параметры воркера.
func (h *Handler) GetWorker(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.info)
}

// NotFound - неизвестный маршрут API.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, "no route for "+r.URL.Path)
}

// ListTasks возвращает зарегистрированные task.
func (h *Handler) ListTasks(w http.ResponseWriter, _ *http.Request) {
	if h.tasks == nil {
		List(w, []string{}, 0)
		return
	}
	names := h.tasks.Names()
	List(w, names, len(names))
}
