package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Courier/internal/task"
)

// --- HTTPRequest Tests ---

func TestHTTPRequest_GET_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("X-Custom", "test-value")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"result": "ok"})
	}))
	defer server.Close()

	h := &HTTPRequest{}
	out, err := h.Run(context.Background(), nil, map[string]any{
		"method": "GET",
		"url":    server.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := out.(map[string]any)
	if result["status_code"] != http.StatusOK {
		t.Errorf("expected status 200, got %v", result["status_code"])
	}

	headers := result["headers"].(map[string]any)
	if headers["X-Custom"] != "test-value" {
		t.Errorf("expected X-Custom header, got %v", headers["X-Custom"])
	}

	body, ok := result["body"].(map[string]any)
	if !ok {
		t.Fatalf("body should be map, got %T", result["body"])
	}
	if body["result"] != "ok" {
		t.Errorf("expected result=ok, got %v", body["result"])
	}

	// Результат идёт в следующее звено chain - должен сериализоваться
	if _, err := json.Marshal(out); err != nil {
		t.Errorf("result should be JSON-serializable: %v", err)
	}
}

func TestHTTPRequest_POST_WithBody(t *testing.T) {
	var receivedBody map[string]any
	var receivedContentType, receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		receivedAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&receivedBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	h := &HTTPRequest{}
	_, err := h.Run(context.Background(), nil, map[string]any{
		"method":  "POST",
		"url":     server.URL,
		"body":    map[string]any{"name": "test"},
		"headers": map[string]any{"Authorization": "Bearer token123"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedBody["name"] != "test" {
		t.Errorf("server should receive body, got %v", receivedBody)
	}
	if receivedContentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", receivedContentType)
	}
	if receivedAuth != "Bearer token123" {
		t.Errorf("expected Authorization header, got %s", receivedAuth)
	}
}

func TestHTTPRequest_StatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		terminal bool
	}{
		{"server error retryable", http.StatusInternalServerError, false},
		{"bad gateway retryable", http.StatusBadGateway, false},
		{"not found terminal", http.StatusNotFound, true},
		{"bad request terminal", http.StatusBadRequest, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := (&HTTPRequest{}).Run(context.Background(), nil, map[string]any{"url": server.URL})
			if !errors.Is(err, ErrHTTPRequest) {
				t.Fatalf("expected ErrHTTPRequest, got %v", err)
			}
			if task.IsTerminal(err) != tt.terminal {
				t.Errorf("expected terminal=%v, got %v", tt.terminal, task.IsTerminal(err))
			}
		})
	}
}

func TestHTTPRequest_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := (&HTTPRequest{}).Run(context.Background(), nil, map[string]any{
		"url":         server.URL,
		"timeout_sec": 0.1,
	})
	if err == nil {
		t.Fatal("expected error for timeout")
	}
	if task.IsTerminal(err) {
		t.Error("timeout should be retryable")
	}
}

func TestHTTPRequest_MissingURL(t *testing.T) {
	_, err := (&HTTPRequest{}).Run(context.Background(), nil, map[string]any{"method": "GET"})
	if !task.IsTerminal(err) {
		t.Errorf("missing url should be terminal, got %v", err)
	}
}

// --- Delay Tests ---

func TestDelay_Success(t *testing.T) {
	start := time.Now()
	out, err := Delay(context.Background(), nil, map[string]any{"duration_sec": 0.05})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(map[string]any)["delayed_sec"] != 0.05 {
		t.Errorf("expected delayed_sec=0.05, got %v", out)
	}
	if elapsed < 40*time.Millisecond {
		t.Error("should have waited at least 40ms")
	}
}

func TestDelay_PositionalArgument(t *testing.T) {
	out, err := Delay(context.Background(), []any{0.01}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(map[string]any)["delayed_sec"] != 0.01 {
		t.Errorf("expected delayed_sec=0.01, got %v", out)
	}
}

func TestDelay_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Delay(ctx, nil, map[string]any{"duration_sec": 10.0})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// --- Echo / Add Tests ---

func TestEcho(t *testing.T) {
	out, err := Echo(context.Background(), []any{"a", 1.0}, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := out.(map[string]any)
	if args := result["args"].([]any); len(args) != 2 || args[0] != "a" {
		t.Errorf("unexpected args: %v", args)
	}
	if kwargs := result["kwargs"].(map[string]any); kwargs["k"] != "v" {
		t.Errorf("unexpected kwargs: %v", kwargs)
	}
}

func TestEcho_NilInputs(t *testing.T) {
	out, _ := Echo(context.Background(), nil, nil)
	result := out.(map[string]any)
	if result["args"] == nil || result["kwargs"] == nil {
		t.Error("nil inputs should become empty collections")
	}
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want float64
	}{
		{"empty", nil, 0},
		{"floats", []any{2.0, 2.0}, 4},
		{"mixed ints", []any{1, int64(2), 3.5}, 6.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Add(context.Background(), tt.args, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAdd_NonNumericIsTerminal(t *testing.T) {
	_, err := Add(context.Background(), []any{1.0, "two"}, nil)
	if !task.IsTerminal(err) {
		t.Errorf("expected terminal error, got %v", err)
	}
}

// --- Register Tests ---

func TestRegister(t *testing.T) {
	reg := task.NewRegistry()
	Register(reg)

	for _, name := range []string{TaskHTTPRequest, TaskDelay, TaskEcho, TaskAdd} {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("expected builtin %s to be registered", name)
		}
	}
}
