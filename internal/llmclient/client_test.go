package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"llmwrapper/internal/core"
)

func TestClient_Do_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "value" {
			t.Errorf("expected header from setter, got %q", r.Header.Get("X-Test"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"hello"}`))
	}))
	defer server.Close()

	client := New(
		Config{ProviderName: "test", BaseURL: server.URL},
		func(req *http.Request) {
			req.Header.Set("X-Test", "value")
		},
	)

	var result struct {
		Message string `json:"message"`
	}
	err := client.Do(context.Background(), Request{
		Method:   http.MethodGet,
		Endpoint: "/test",
	}, &result)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != "hello" {
		t.Errorf("expected message 'hello', got '%s'", result.Message)
	}
}

func TestClient_Do_MergesExtraIntoBody(t *testing.T) {
	var receivedBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type 'application/json', got '%s'", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &receivedBody)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(Config{ProviderName: "test", BaseURL: server.URL}, nil)

	err := client.Do(context.Background(), Request{
		Method:   http.MethodPost,
		Endpoint: "/test",
		Body:     map[string]any{"input": "test", "stream": true},
		Extra:    map[string]any{"stream": false, "seed": 42},
		Headers:  map[string]string{"X-Custom": "custom-value"},
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receivedBody["input"] != "test" {
		t.Errorf("input = %v, want test", receivedBody["input"])
	}
	if receivedBody["stream"] != false {
		t.Errorf("stream = %v, want extra to override body", receivedBody["stream"])
	}
	if receivedBody["seed"] != float64(42) {
		t.Errorf("seed = %v, want 42", receivedBody["seed"])
	}
}

func TestClient_Do_ErrorParsing(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantType   core.ErrorType
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, core.ErrorTypeAuthentication},
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, core.ErrorTypeRateLimit},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, core.ErrorTypeInvalidRequest},
		{"not found", http.StatusNotFound, `{"error":"model not found"}`, core.ErrorTypeNotFound},
		{"server error", http.StatusInternalServerError, `oops`, core.ErrorTypeProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := New(Config{ProviderName: "test", BaseURL: server.URL}, nil)
			err := client.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/x"}, nil)

			var coreErr *core.Error
			if !errors.As(err, &coreErr) {
				t.Fatalf("expected *core.Error, got %T: %v", err, err)
			}
			if coreErr.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", coreErr.Type, tt.wantType)
			}
			if coreErr.Provider != "test" {
				t.Errorf("Provider = %q, want test", coreErr.Provider)
			}
		})
	}
}

func TestClient_Do_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(Config{ProviderName: "test", BaseURL: server.URL}, nil)
	err := client.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/x"}, nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want exactly 1", got)
	}
}

func TestClient_Do_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := New(Config{ProviderName: "test", BaseURL: server.URL}, nil)
	err := client.Do(ctx, Request{Method: http.MethodGet, Endpoint: "/slow"}, nil)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestClient_Do_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := New(Config{ProviderName: "test", BaseURL: server.URL}, nil)
	var out map[string]any
	err := client.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/x"}, &out)

	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrorTypeProvider {
		t.Errorf("error = %v, want provider error", err)
	}
}
