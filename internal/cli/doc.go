// Package cli реализует команды courier.
//
// # Обзор
//
// CLI запускает воркеры и отправляет task. Приложение (набор task
// и настройки брокера) выбирается по имени через Loader.
//
// # Команды
//
//   - worker APP - воркер: -c concurrency, -Q очереди, -l уровень логирования,
//     --dlx dead-letter exchange, --ack-timeout, --metrics-addr
//   - send APP TASK - отправка task или chain (--then)
//   - tasks APP - список task приложения
//
// Каждая команда создаётся через фабричную функцию (NewWorkerCmd и т.д.),
// принимающую Loader.
//
// # Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) - по умолчанию
//   - JSON - с флагом --json
//
// Данные выводятся в stdout, сообщения - в stderr.
// Это позволяет использовать pipe: courier tasks courier --json | jq .
//
// # Коды завершения
//
// 0 - успех (в том числе остановка воркера по сигналу),
// 1 - ошибка выполнения (например, брокер недоступен),
// 2 - ошибка аргументов (например, concurrency < 1).
package cli
