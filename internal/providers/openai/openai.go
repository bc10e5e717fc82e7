// Package openai adapts the go-openai client to the wrapper contract. The
// same adapter serves any OpenAI-compatible backend through NewCompatible.
package openai

import (
	"context"
	"math"
	"net/http"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"

	"llmwrapper/internal/core"
	"llmwrapper/internal/providers"
)

const (
	Name           = "openai"
	DefaultModel   = "gpt-4"
	defaultBaseURL = "https://api.openai.com/v1"
)

// Registration provides factory registration for the OpenAI provider.
var Registration = providers.Registration{
	Name:         Name,
	DefaultModel: DefaultModel,
	New:          New,
	NewAsync:     NewAsync,
}

// chatClient is the part of *gopenai.Client the adapter uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request gopenai.ChatCompletionRequest) (gopenai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (gopenai.ModelsList, error)
}

// Provider is the blocking OpenAI wrapper.
type Provider struct {
	base   *providers.Base
	client chatClient
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
	return NewCompatible(providers.BaseOptions{
		Name:         Name,
		DefaultModel: DefaultModel,
		RequireKey:   true,
	}, defaultBaseURL, cfg, deps)
}

// NewCompatible builds a wrapper for an OpenAI-compatible API served at
// defaultBaseURL unless cfg overrides it.
func NewCompatible(opts providers.BaseOptions, defaultBaseURL string, cfg providers.Config, deps providers.Dependencies) (*Provider, error) {
	base, err := providers.NewBase(opts, cfg, deps)
	if err != nil {
		return nil, err
	}

	clientCfg := gopenai.DefaultConfig(base.APIKey())
	clientCfg.BaseURL = defaultBaseURL
	if base.BaseURL() != "" {
		clientCfg.BaseURL = strings.TrimRight(base.BaseURL(), "/")
	}
	clientCfg.HTTPClient = requestIDDoer{client: base.Deps().HTTPClient}

	return &Provider{
		base:   base,
		client: gopenai.NewClientWithConfig(clientCfg),
	}, nil
}

// ProviderName implements core.LLM.
func (p *Provider) ProviderName() string {
	return p.base.ProviderName()
}

// Model implements core.LLM.
func (p *Provider) Model() string {
	return p.base.Model()
}

// Chat sends the conversation through the chat completions endpoint.
func (p *Provider) Chat(ctx context.Context, messages []core.Message, opts ...core.ChatOption) (string, error) {
	return p.base.Invoke(ctx, messages, opts, p.complete)
}

// ListModels returns the model IDs visible to the API key.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (p *Provider) complete(ctx context.Context, messages []core.Message, opts core.ChatOptions) (string, *core.Usage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(ctx, messages, opts))
	if err != nil {
		return "", nil, err
	}
	if len(resp.Choices) == 0 {
		return "", nil, core.NewProviderError(p.base.ProviderName(), http.StatusBadGateway, "response contained no choices", nil)
	}
	return resp.Choices[0].Message.Content, convertUsage(resp.Usage), nil
}

// isOSeriesModel reports whether the model is an OpenAI o-series model
// (o1, o3, o4) that requires max_completion_tokens instead of max_tokens
// and does not support the temperature parameter.
func isOSeriesModel(model string) bool {
	m := strings.ToLower(model)
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}

func (p *Provider) buildRequest(ctx context.Context, messages []core.Message, opts core.ChatOptions) gopenai.ChatCompletionRequest {
	model := p.base.Model()
	oSeries := isOSeriesModel(model)

	req := gopenai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]gopenai.ChatCompletionMessage, 0, len(messages)),
		Stop:     opts.Stop,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, gopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	if opts.Temperature != nil && !oSeries {
		req.Temperature = sdkFloat(*opts.Temperature)
	}
	if opts.MaxTokens != nil {
		if oSeries {
			req.MaxCompletionTokens = *opts.MaxTokens
		} else {
			req.MaxTokens = *opts.MaxTokens
		}
	}
	if opts.TopP != nil {
		req.TopP = sdkFloat(*opts.TopP)
	}

	log := p.base.Log().Logger()
	if opts.TopK != nil {
		log.DebugContext(ctx, "ignoring unsupported option", "provider", p.base.ProviderName(), "option", "top_k")
	}
	for key, value := range opts.Extra {
		if !applyExtra(&req, key, value) {
			log.DebugContext(ctx, "ignoring unsupported option", "provider", p.base.ProviderName(), "option", key)
		}
	}
	return req
}

// sdkFloat converts an explicitly set option for the SDK. Its float fields
// are omitempty, so zero is sent as the smallest positive float32 instead of
// being dropped.
func sdkFloat(v float64) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(v)
}

// applyExtra maps the extra options the SDK request has fields for.
func applyExtra(req *gopenai.ChatCompletionRequest, key string, value any) bool {
	switch key {
	case "presence_penalty", "frequency_penalty":
		f, err := core.AsFloat(value)
		if err != nil {
			return false
		}
		if key == "presence_penalty" {
			req.PresencePenalty = sdkFloat(f)
		} else {
			req.FrequencyPenalty = sdkFloat(f)
		}
	case "seed":
		n, err := core.AsInt(value)
		if err != nil {
			return false
		}
		req.Seed = &n
	case "n":
		n, err := core.AsInt(value)
		if err != nil {
			return false
		}
		req.N = n
	case "user":
		s, ok := value.(string)
		if !ok {
			return false
		}
		req.User = s
	default:
		return false
	}
	return true
}

func convertUsage(u gopenai.Usage) *core.Usage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 {
		return nil
	}
	return core.NewUsage(u.PromptTokens, u.CompletionTokens, u.TotalTokens)
}

// requestIDDoer forwards the context request ID as X-Client-Request-Id.
type requestIDDoer struct {
	client *http.Client
}

func (d requestIDDoer) Do(req *http.Request) (*http.Response, error) {
	if id := core.GetRequestID(req.Context()); id != "" && isValidClientRequestID(id) {
		req.Header.Set("X-Client-Request-Id", id)
	}
	return d.client.Do(req)
}

// isValidClientRequestID checks the header constraints: ASCII only, at most
// 512 bytes.
func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}
