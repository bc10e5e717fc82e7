// Package anthropic provides the Claude wrapper over the Anthropic Messages API.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	"llmwrapper/internal/core"
	"llmwrapper/internal/llmclient"
	"llmwrapper/internal/providers"
)

const (
	Name                = "anthropic"
	DefaultModel        = "claude-3-opus-20240229"
	defaultBaseURL      = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
	defaultMaxTokens    = 4096
)

// Registration provides factory registration for the Anthropic provider.
var Registration = providers.Registration{
	Name:         Name,
	DefaultModel: DefaultModel,
	New:          New,
	NewAsync:     NewAsync,
}

// Provider is the blocking Claude wrapper.
type Provider struct {
	base   *providers.Base
	client *llmclient.Client
}

// New builds the blocking wrapper.
func New(cfg providers.Config, deps providers.Dependencies) (core.LLM, error) {
	p, err := NewProvider(cfg, deps)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewProvider builds the blocking wrapper with its concrete type.
func NewProvider(cfg providers.Config, deps providers.Dependencies) (*Provider, error) {
	base, err := providers.NewBase(providers.BaseOptions{
		Name:         Name,
		DefaultModel: DefaultModel,
		RequireKey:   true,
	}, cfg, deps)
	if err != nil {
		return nil, err
	}

	baseURL := defaultBaseURL
	if base.BaseURL() != "" {
		baseURL = strings.TrimRight(base.BaseURL(), "/")
	}
	p := &Provider{base: base}
	p.client = llmclient.NewWithHTTPClient(base.Deps().HTTPClient, llmclient.Config{
		ProviderName: Name,
		BaseURL:      baseURL,
	}, p.setHeaders)
	return p, nil
}

// setHeaders sets the required headers for Anthropic API requests
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.base.APIKey())
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	if requestID := core.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-Request-Id", requestID)
	}
}

// ProviderName implements core.LLM.
func (p *Provider) ProviderName() string {
	return p.base.ProviderName()
}

// Model implements core.LLM.
func (p *Provider) Model() string {
	return p.base.Model()
}

// Chat sends the conversation to the Messages API.
func (p *Provider) Chat(ctx context.Context, messages []core.Message, opts ...core.ChatOption) (string, error) {
	return p.base.Invoke(ctx, messages, opts, p.complete)
}

// anthropicRequest represents the Anthropic API request format
type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	TopK          *int               `json:"top_k,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse represents the Anthropic API response format
type anthropicResponse struct {
	ID         string             `json:"id"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      *anthropicUsage    `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// convertToAnthropicRequest lifts system messages into the system field;
// several are joined with a blank line.
func convertToAnthropicRequest(model string, messages []core.Message, opts core.ChatOptions) *anthropicRequest {
	req := &anthropicRequest{
		Model:         model,
		Messages:      make([]anthropicMessage, 0, len(messages)),
		MaxTokens:     defaultMaxTokens,
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		TopK:          opts.TopK,
		StopSequences: opts.Stop,
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}

	var system []string
	for _, msg := range messages {
		if msg.Role == core.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	req.System = strings.Join(system, "\n\n")
	return req
}

// responseText concatenates the text blocks of the reply.
func responseText(resp *anthropicResponse) (string, bool) {
	var sb strings.Builder
	found := false
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
			found = true
		}
	}
	return sb.String(), found
}

func (p *Provider) complete(ctx context.Context, messages []core.Message, opts core.ChatOptions) (string, *core.Usage, error) {
	var resp anthropicResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     convertToAnthropicRequest(p.base.Model(), messages, opts),
		Extra:    opts.Extra,
	}, &resp)
	if err != nil {
		return "", nil, err
	}

	text, ok := responseText(&resp)
	if !ok {
		return "", nil, core.NewProviderError(Name, http.StatusBadGateway, "response contained no text content", nil)
	}

	var usage *core.Usage
	if resp.Usage != nil {
		usage = core.NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, 0)
	}
	return text, usage, nil
}

// AsyncProvider is the non-blocking Claude wrapper.
type AsyncProvider struct {
	*Provider
}

// NewAsync builds the non-blocking wrapper.
func NewAsync(cfg providers.Config, deps providers.Dependencies) (core.AsyncLLM, error) {
	p, err := NewProvider(cfg, deps)
	if err != nil {
		return nil, err
	}
	return &AsyncProvider{Provider: p}, nil
}

// ChatAsync starts the call on its own goroutine and returns immediately.
func (p *AsyncProvider) ChatAsync(ctx context.Context, messages []core.Message, opts ...core.ChatOption) *core.Call {
	return p.base.Go(ctx, messages, opts, p.complete)
}
