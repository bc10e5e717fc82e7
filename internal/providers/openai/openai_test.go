package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	gopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmwrapper/internal/core"
	"llmwrapper/internal/logging"
	"llmwrapper/internal/providers"
)

var testKey = "sk-" + strings.Repeat("x", 40)

func testDeps(buf *bytes.Buffer) providers.Dependencies {
	logger := slog.New(logging.NewMaskingHandler(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return providers.Dependencies{Logger: logging.NewCallLogger(logger, logging.Hooks{})}
}

const completionBody = `{
	"id": "chatcmpl-123",
	"object": "chat.completion",
	"created": 1677652288,
	"model": "gpt-4",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "Hello! How can I help you today?"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
}`

func TestNew_RequiresAPIKey(t *testing.T) {
	var buf bytes.Buffer
	_, err := New(providers.Config{}, testDeps(&buf))
	assert.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestNew_DefaultModel(t *testing.T) {
	var buf bytes.Buffer
	llm, err := New(providers.Config{APIKey: testKey}, testDeps(&buf))
	require.NoError(t, err)
	assert.Equal(t, "openai", llm.ProviderName())
	assert.Equal(t, "gpt-4", llm.Model())
}

func TestChat(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		responseBody string
		wantText     string
		wantErr      bool
	}{
		{
			name:         "successful request",
			statusCode:   http.StatusOK,
			responseBody: completionBody,
			wantText:     "Hello! How can I help you today?",
		},
		{
			name:         "api error",
			statusCode:   http.StatusUnauthorized,
			responseBody: `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`,
			wantErr:      true,
		},
		{
			name:         "no choices",
			statusCode:   http.StatusOK,
			responseBody: `{"id": "x", "choices": []}`,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/chat/completions" {
					t.Errorf("Path = %q, want %q", r.URL.Path, "/chat/completions")
				}
				if got := r.Header.Get("Authorization"); got != "Bearer "+testKey {
					t.Errorf("Authorization header = %q", got)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			var buf bytes.Buffer
			llm, err := New(providers.Config{APIKey: testKey, BaseURL: server.URL}, testDeps(&buf))
			require.NoError(t, err)

			text, err := llm.Chat(context.Background(), []core.Message{core.UserMessage("Hello")})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, buf.String(), "provider call failed")
				assert.NotContains(t, buf.String(), testKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, text)
			assert.Contains(t, buf.String(), `"total_tokens":30`)
		})
	}
}

func TestChat_VendorErrorIsSDKError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests"}}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	llm, err := New(providers.Config{APIKey: testKey, BaseURL: server.URL}, testDeps(&buf))
	require.NoError(t, err)

	_, err = llm.Chat(context.Background(), []core.Message{core.UserMessage("Hello")})
	var apiErr *gopenai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatusCode)
}

func TestChat_RequestMapping(t *testing.T) {
	tests := []struct {
		name  string
		model string
		opts  []core.ChatOption
		check func(t *testing.T, body map[string]any)
	}{
		{
			name:  "standard model",
			model: "gpt-4",
			opts:  []core.ChatOption{core.WithTemperature(0.5), core.WithMaxTokens(64), core.WithStop("END")},
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, 0.5, body["temperature"])
				assert.Equal(t, float64(64), body["max_tokens"])
				assert.Nil(t, body["max_completion_tokens"])
				assert.Equal(t, []any{"END"}, body["stop"])
			},
		},
		{
			name:  "o-series model",
			model: "o3-mini",
			opts:  []core.ChatOption{core.WithTemperature(0.5), core.WithMaxTokens(64)},
			check: func(t *testing.T, body map[string]any) {
				assert.Nil(t, body["temperature"])
				assert.Nil(t, body["max_tokens"])
				assert.Equal(t, float64(64), body["max_completion_tokens"])
			},
		},
		{
			name:  "explicit zero values are sent",
			model: "gpt-4",
			opts:  []core.ChatOption{core.WithTemperature(0), core.WithTopP(0), core.WithExtra("presence_penalty", 0)},
			check: func(t *testing.T, body map[string]any) {
				for _, key := range []string{"temperature", "top_p", "presence_penalty"} {
					require.Contains(t, body, key)
					assert.InDelta(t, 0, body[key], 1e-30, key)
				}
				assert.NotContains(t, body, "frequency_penalty")
			},
		},
		{
			name:  "extras",
			model: "gpt-4",
			opts:  []core.ChatOption{core.WithExtra("seed", 7), core.WithExtra("user", "u-1"), core.WithExtra("unknown", true)},
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, float64(7), body["seed"])
				assert.Equal(t, "u-1", body["user"])
				assert.Nil(t, body["unknown"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				if err := json.Unmarshal(raw, &body); err != nil {
					t.Errorf("request body is not JSON: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(completionBody))
			}))
			defer server.Close()

			var buf bytes.Buffer
			llm, err := New(providers.Config{APIKey: testKey, Model: tt.model, BaseURL: server.URL}, testDeps(&buf))
			require.NoError(t, err)

			msgs := []core.Message{core.SystemMessage("Be brief."), core.UserMessage("Hello")}
			_, err = llm.Chat(context.Background(), msgs, tt.opts...)
			require.NoError(t, err)

			assert.Equal(t, tt.model, body["model"])
			messages, _ := body["messages"].([]any)
			require.Len(t, messages, 2)
			first, _ := messages[0].(map[string]any)
			assert.Equal(t, "system", first["role"])
			tt.check(t, body)
		})
	}
}

func TestChat_ForwardsRequestID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Client-Request-Id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	var buf bytes.Buffer
	llm, err := New(providers.Config{APIKey: testKey, BaseURL: server.URL}, testDeps(&buf))
	require.NoError(t, err)

	ctx := core.WithRequestID(context.Background(), "req-42")
	_, err = llm.Chat(ctx, []core.Message{core.UserMessage("Hello")})
	require.NoError(t, err)
	assert.Equal(t, "req-42", got)
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Path = %q, want %q", r.URL.Path, "/models")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "data": [{"id": "gpt-4", "object": "model"}, {"id": "gpt-4o", "object": "model"}]}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	p, err := NewProvider(providers.Config{APIKey: testKey, BaseURL: server.URL}, testDeps(&buf))
	require.NoError(t, err)

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4", "gpt-4o"}, models)
}

func TestChatAsync(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	var buf bytes.Buffer
	llm, err := NewAsync(providers.Config{APIKey: testKey, BaseURL: server.URL}, testDeps(&buf))
	require.NoError(t, err)

	calls := make([]*core.Call, 5)
	for i := range calls {
		calls[i] = llm.ChatAsync(context.Background(), []core.Message{core.UserMessage("Hello")})
	}
	texts, err := core.Gather(context.Background(), calls...)
	require.NoError(t, err)
	require.Len(t, texts, 5)
	for _, text := range texts {
		assert.Equal(t, "Hello! How can I help you today?", text)
	}
	assert.Equal(t, int32(5), hits.Load())
}

func TestIsOSeriesModel(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"o1", true},
		{"o3-mini", true},
		{"O4-mini", true},
		{"gpt-4o", false},
		{"omni", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isOSeriesModel(tt.model); got != tt.want {
			t.Errorf("isOSeriesModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestIsValidClientRequestID(t *testing.T) {
	assert.True(t, isValidClientRequestID("abc-123"))
	assert.False(t, isValidClientRequestID("héllo"))
	assert.False(t, isValidClientRequestID(strings.Repeat("a", 513)))
}
