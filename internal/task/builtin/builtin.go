// Package builtin - встроенные task, доступные каждому приложению.
//
//   - http.request - HTTP-запрос
//   - delay - ожидание
//   - echo - возвращает свои аргументы
//   - math.add - сумма числовых аргументов
package builtin

import (
	"errors"
	"time"

	"github.com/shaiso/Courier/internal/task"
)

// Имена встроенных task.
const (
	TaskHTTPRequest = "http.request"
	TaskDelay       = "delay"
	TaskEcho        = "echo"
	TaskAdd         = "math.add"
)

// ErrHTTPRequest - HTTP-запрос завершился ошибкой.
var ErrHTTPRequest = errors.New("http request failed")

// Register регистрирует все встроенные task в реестре.
func Register(reg *task.Registry) {
	reg.Register(TaskHTTPRequest, &HTTPRequest{})
	reg.Register(TaskDelay, task.HandlerFunc(Delay))
	reg.Register(TaskEcho, task.HandlerFunc(Echo))
	reg.Register(TaskAdd, task.HandlerFunc(Add))
}

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// getSeconds извлекает длительность в секундах.
func getSeconds(m map[string]any, key string, defaultVal time.Duration) time.Duration {
	if val, ok := m[key]; ok {
		if f, ok := toFloat(val); ok && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return defaultVal
}

// toFloat приводит JSON-число к float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
