package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Courier/internal/task"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPRequest - task "http.request".
//
// Kwargs:
//   - method (string): HTTP-метод. Default: GET
//   - url (string): URL для запроса (обязательно)
//   - headers (map[string]any): HTTP-заголовки
//   - body (any): тело запроса (сериализуется в JSON)
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
//
// Результат: {status_code, headers, body}.
// Ответ 5xx и сетевые ошибки повторяются, 4xx - терминальная ошибка.
type HTTPRequest struct {
	// Client - HTTP-клиент (опционально; если nil - http.DefaultClient).
	Client *http.Client
}

// Run выполняет HTTP-запрос.
func (h *HTTPRequest) Run(ctx context.Context, _ []any, kwargs map[string]any) (any, error) {
	method := getString(kwargs, "method", http.MethodGet)
	url := getString(kwargs, "url", "")
	if url == "" {
		return nil, task.Terminal(fmt.Errorf("%w: url is required", ErrHTTPRequest))
	}

	ctx, cancel := context.WithTimeout(ctx, getSeconds(kwargs, "timeout_sec", defaultHTTPTimeout))
	defer cancel()

	var bodyReader io.Reader
	if body, ok := kwargs["body"]; ok && body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, task.Terminal(fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err))
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, task.Terminal(fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err))
	}

	setHeaders(req, kwargs)

	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
	case resp.StatusCode >= 400:
		return nil, task.Terminalf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	return buildResult(resp, respBody), nil
}

// buildResult формирует результат из HTTP-ответа.
func buildResult(resp *http.Response, body []byte) map[string]any {
	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	// Парсим body: пробуем JSON, иначе строка
	var parsedBody any
	if err := json.Unmarshal(body, &parsedBody); err != nil {
		parsedBody = string(body)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        parsedBody,
	}
}

// setHeaders устанавливает заголовки из kwargs.
func setHeaders(req *http.Request, kwargs map[string]any) {
	headers, ok := kwargs["headers"]
	if !ok || headers == nil {
		return
	}

	switch h := headers.(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
