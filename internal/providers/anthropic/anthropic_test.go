package anthropic

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmwrapper/internal/core"
	"llmwrapper/internal/logging"
	"llmwrapper/internal/providers"
)

var testKey = "sk-ant-" + strings.Repeat("a", 40)

func testDeps(buf *bytes.Buffer) providers.Dependencies {
	logger := slog.New(logging.NewMaskingHandler(slog.NewJSONHandler(buf, nil)))
	return providers.Dependencies{Logger: logging.NewCallLogger(logger, logging.Hooks{})}
}

const messageBody = `{
	"id": "msg_123",
	"type": "message",
	"role": "assistant",
	"content": [{"type": "text", "text": "Hello! How can I help you today?"}],
	"model": "claude-3-opus-20240229",
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 10, "output_tokens": 20}
}`

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	llm, err := New(providers.Config{APIKey: testKey}, testDeps(&buf))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", llm.ProviderName())
	assert.Equal(t, DefaultModel, llm.Model())

	_, err = New(providers.Config{}, testDeps(&buf))
	assert.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestChat(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		responseBody string
		wantText     string
		wantType     core.ErrorType
	}{
		{
			name:         "successful request",
			statusCode:   http.StatusOK,
			responseBody: messageBody,
			wantText:     "Hello! How can I help you today?",
		},
		{
			name:         "multiple text blocks",
			statusCode:   http.StatusOK,
			responseBody: `{"content": [{"type": "text", "text": "Hello"}, {"type": "text", "text": " world"}]}`,
			wantText:     "Hello world",
		},
		{
			name:         "authentication error",
			statusCode:   http.StatusUnauthorized,
			responseBody: `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`,
			wantType:     core.ErrorTypeAuthentication,
		},
		{
			name:         "overloaded",
			statusCode:   529,
			responseBody: `{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`,
			wantType:     core.ErrorTypeProvider,
		},
		{
			name:         "no text content",
			statusCode:   http.StatusOK,
			responseBody: `{"content": []}`,
			wantType:     core.ErrorTypeProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/messages" {
					t.Errorf("Path = %q, want %q", r.URL.Path, "/messages")
				}
				if r.Header.Get("x-api-key") != testKey {
					t.Errorf("x-api-key header = %q", r.Header.Get("x-api-key"))
				}
				if r.Header.Get("anthropic-version") != anthropicAPIVersion {
					t.Errorf("anthropic-version header = %q", r.Header.Get("anthropic-version"))
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			var buf bytes.Buffer
			llm, err := New(providers.Config{APIKey: testKey, BaseURL: server.URL}, testDeps(&buf))
			require.NoError(t, err)

			text, err := llm.Chat(context.Background(), []core.Message{core.UserMessage("Hello")})
			if tt.wantType != "" {
				var coreErr *core.Error
				require.ErrorAs(t, err, &coreErr)
				assert.Equal(t, tt.wantType, coreErr.Type)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, text)
			assert.NotContains(t, buf.String(), testKey)
		})
	}
}

func TestChat_RequestBody(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		_, _ = w.Write([]byte(messageBody))
	}))
	defer server.Close()

	var buf bytes.Buffer
	llm, err := New(providers.Config{
		APIKey:  testKey,
		Model:   "claude-3-5-sonnet-20241022",
		BaseURL: server.URL,
		Options: map[string]any{"top_k": 40},
	}, testDeps(&buf))
	require.NoError(t, err)

	_, err = llm.Chat(context.Background(), []core.Message{
		core.SystemMessage("Be brief."),
		core.SystemMessage("Answer in English."),
		core.UserMessage("Hello"),
		core.AssistantMessage("Hi."),
		core.UserMessage("How are you?"),
	}, core.WithTemperature(0.3), core.WithStop("\n\nHuman:"), core.WithExtra("metadata", map[string]any{"user_id": "u-1"}))
	require.NoError(t, err)

	assert.Equal(t, "claude-3-5-sonnet-20241022", body["model"])
	assert.Equal(t, "Be brief.\n\nAnswer in English.", body["system"])
	assert.Equal(t, float64(defaultMaxTokens), body["max_tokens"])
	assert.Equal(t, 0.3, body["temperature"])
	assert.Equal(t, float64(40), body["top_k"])
	assert.Equal(t, []any{"\n\nHuman:"}, body["stop_sequences"])
	assert.Equal(t, map[string]any{"user_id": "u-1"}, body["metadata"])

	messages, _ := body["messages"].([]any)
	require.Len(t, messages, 3)
	second, _ := messages[1].(map[string]any)
	assert.Equal(t, "assistant", second["role"])
	assert.Equal(t, "Hi.", second["content"])
}

func TestChat_MaxTokensOverride(t *testing.T) {
	req := convertToAnthropicRequest("m", []core.Message{core.UserMessage("hi")}, core.ResolveOptions(core.ChatOptions{}, core.WithMaxTokens(256)))
	assert.Equal(t, 256, req.MaxTokens)
	assert.Empty(t, req.System)
}

func TestChat_TokenUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(messageBody))
	}))
	defer server.Close()

	var buf bytes.Buffer
	llm, err := New(providers.Config{APIKey: testKey, BaseURL: server.URL}, testDeps(&buf))
	require.NoError(t, err)

	_, err = llm.Chat(context.Background(), []core.Message{core.UserMessage("Hello")})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `"prompt_tokens":10`)
	assert.Contains(t, out, `"completion_tokens":20`)
	assert.Contains(t, out, `"total_tokens":30`)
}

func TestChatAsync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(messageBody))
	}))
	defer server.Close()

	var buf bytes.Buffer
	llm, err := NewAsync(providers.Config{APIKey: testKey, BaseURL: server.URL}, testDeps(&buf))
	require.NoError(t, err)

	a := llm.ChatAsync(context.Background(), []core.Message{core.UserMessage("one")})
	b := llm.ChatAsync(context.Background(), []core.Message{core.UserMessage("two")})
	texts, err := core.Gather(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello! How can I help you today?", "Hello! How can I help you today?"}, texts)
}
