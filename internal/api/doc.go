// Package api содержит служебный HTTP сервер воркера.
//
// Структура:
//   - handler.go     - Handler с DI (описание воркера, реестр task, метрики, logger)
//   - routes.go      - регистрация маршрутов
//   - middleware.go  - middleware (logging, recovery)
//   - response.go    - унифицированные JSON-ответы
//   - server.go      - запуск и остановка http.Server
//
// Endpoints:
//   - GET /healthz          - liveness
//   - GET /metrics          - Prometheus
//   - GET /api/v1/worker    - параметры воркера
//   - GET /api/v1/tasks     - зарегистрированные task
package api
