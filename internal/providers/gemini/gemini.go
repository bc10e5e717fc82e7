// Package gemini provides the Google Gemini wrapper over the native
// generateContent API.
package gemini

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"llmwrapper/internal/core"
	"llmwrapper/internal/llmclient"
	"llmwrapper/internal/providers"
)

const (
	Name           = "gemini"
	DefaultModel   = "gemini-pro"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// thinkingBudgetOption is consumed by the wrapper and sent as
	// generationConfig.thinkingConfig.thinkingBudget.
	thinkingBudgetOption = "thinking_budget"
)

// Registration provides factory registration for the Gemini provider.
var Registration = providers.Registration{
	Name:         Name,
	DefaultModel: DefaultModel,
	New:          New,
	NewAsync:     NewAsync,
}

// Provider is the blocking Gemini wrapper.
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

// setHeaders authenticates with the header form of the key so it never
// appears in a URL.
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.base.APIKey())
}

// ProviderName implements core.LLM.
func (p *Provider) ProviderName() string {
	return p.base.ProviderName()
}

// Model implements core.LLM.
func (p *Provider) Model() string {
	return p.base.Model()
}

// Chat sends the conversation to generateContent.
func (p *Provider) Chat(ctx context.Context, messages []core.Message, opts ...core.ChatOption) (string, error) {
	return p.base.Invoke(ctx, messages, opts, p.complete)
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generationConfig struct {
	Temperature     *float64        `json:"temperature,omitempty"`
	MaxOutputTokens *int            `json:"maxOutputTokens,omitempty"`
	TopP            *float64        `json:"topP,omitempty"`
	TopK            *int            `json:"topK,omitempty"`
	StopSequences   []string        `json:"stopSequences,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

func (g generationConfig) empty() bool {
	return g.Temperature == nil && g.MaxOutputTokens == nil && g.TopP == nil &&
		g.TopK == nil && len(g.StopSequences) == 0 && g.ThinkingConfig == nil
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// buildRequest maps the conversation onto Gemini contents. System messages
// become the system instruction and assistant turns use the "model" role.
// The returned extras exclude options consumed here.
func buildRequest(messages []core.Message, opts core.ChatOptions) (*geminiRequest, map[string]any, error) {
	req := &geminiRequest{Contents: make([]geminiContent, 0, len(messages))}

	var system []geminiPart
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			system = append(system, geminiPart{Text: msg.Content})
		case core.RoleAssistant:
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: system}
	}

	gen := generationConfig{
		Temperature:     opts.Temperature,
		MaxOutputTokens: opts.MaxTokens,
		TopP:            opts.TopP,
		TopK:            opts.TopK,
		StopSequences:   opts.Stop,
	}

	var extra map[string]any
	for k, v := range opts.Extra {
		if k == thinkingBudgetOption {
			budget, err := core.AsInt(v)
			if err != nil {
				return nil, nil, core.NewInvalidRequestError("invalid thinking_budget: "+err.Error(), err)
			}
			gen.ThinkingConfig = &thinkingConfig{ThinkingBudget: budget}
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}

	if !gen.empty() {
		req.GenerationConfig = &gen
	}
	return req, extra, nil
}

func (p *Provider) complete(ctx context.Context, messages []core.Message, opts core.ChatOptions) (string, *core.Usage, error) {
	body, extra, err := buildRequest(messages, opts)
	if err != nil {
		return "", nil, err
	}

	var resp geminiResponse
	err = p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/models/" + url.PathEscape(p.base.Model()) + ":generateContent",
		Body:     body,
		Extra:    extra,
	}, &resp)
	if err != nil {
		return "", nil, err
	}

	if len(resp.Candidates) == 0 {
		msg := "response contained no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			msg += " (blocked: " + resp.PromptFeedback.BlockReason + ")"
		}
		return "", nil, core.NewProviderError(Name, http.StatusBadGateway, msg, nil)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	var usage *core.Usage
	if u := resp.UsageMetadata; u != nil {
		usage = core.NewUsage(u.PromptTokenCount, u.CandidatesTokenCount, u.TotalTokenCount)
	}
	return sb.String(), usage, nil
}

type modelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the model names without the "models/" prefix.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	var resp modelsResponse
	if err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
	}, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, strings.TrimPrefix(m.Name, "models/"))
	}
	return out, nil
}

// AsyncProvider is the non-blocking Gemini wrapper. The REST call has no
// native non-blocking form, so each call occupies a slot of the shared
// worker pool while it runs.
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

// ChatAsync queues the call on the worker pool and returns immediately.
func (p *AsyncProvider) ChatAsync(ctx context.Context, messages []core.Message, opts ...core.ChatOption) *core.Call {
	return p.base.Submit(ctx, messages, opts, p.complete)
}
