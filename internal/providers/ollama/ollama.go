// Package ollama provides the wrapper for a local Ollama server. Requests go
// to the non-streaming /api/generate endpoint with the conversation
// flattened into a single prompt.
package ollama

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"llmwrapper/internal/core"
	"llmwrapper/internal/llmclient"
	"llmwrapper/internal/providers"
)

const (
	Name           = "ollama"
	DefaultModel   = "llama3"
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 120 * time.Second
	// availabilityTimeout bounds the /api/tags check.
	availabilityTimeout = 5 * time.Second

	// verifyConnectionOption checks the server during construction.
	verifyConnectionOption = "verify_connection"
)

// Registration provides factory registration for the Ollama provider.
var Registration = providers.Registration{
	Name:         Name,
	DefaultModel: DefaultModel,
	Defaults: providers.Config{
		BaseURL: defaultBaseURL,
		Options: map[string]any{"timeout": defaultTimeout.Seconds()},
	},
	New:      New,
	NewAsync: NewAsync,
}

// Provider is the blocking Ollama wrapper.
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

// NewProvider builds the blocking wrapper with its concrete type. The API
// key is optional and, when set, is sent as a bearer token for servers
// behind an authenticating proxy.
func NewProvider(cfg providers.Config, deps providers.Dependencies) (*Provider, error) {
	cfg.Options = maps.Clone(cfg.Options)
	if cfg.Options == nil {
		cfg.Options = make(map[string]any)
	}
	if _, ok := cfg.Options["timeout"]; !ok {
		cfg.Options["timeout"] = defaultTimeout.Seconds()
	}
	verify, _ := cfg.Options[verifyConnectionOption].(bool)
	delete(cfg.Options, verifyConnectionOption)

	base, err := providers.NewBase(providers.BaseOptions{
		Name:         Name,
		DefaultModel: DefaultModel,
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

	if verify {
		if err := p.CheckAvailability(context.Background()); err != nil {
			return nil, core.NewConfigurationError(Name,
				fmt.Sprintf("ollama server not accessible at %s; ensure it is running with 'ollama serve'", baseURL), err)
		}
	}
	return p, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	if key := p.base.APIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
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

// Chat sends the flattened conversation to /api/generate.
func (p *Provider) Chat(ctx context.Context, messages []core.Message, opts ...core.ChatOption) (string, error) {
	return p.base.Invoke(ctx, messages, opts, p.complete)
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

// buildPrompt renders the conversation as labelled turns and leaves an open
// assistant turn for the model to complete.
func buildPrompt(messages []core.Message) string {
	parts := make([]string, 0, len(messages)+1)
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			parts = append(parts, "System: "+m.Content)
		case core.RoleUser:
			parts = append(parts, "Human: "+m.Content)
		case core.RoleAssistant:
			parts = append(parts, "Assistant: "+m.Content)
		default:
			parts = append(parts, string(m.Role)+": "+m.Content)
		}
	}
	parts = append(parts, "Assistant:")
	return strings.Join(parts, "\n\n")
}

// buildOptions maps the common options onto Ollama's names. Other extras
// pass through unchanged (num_ctx, seed, repeat_penalty, ...).
func buildOptions(opts core.ChatOptions) map[string]any {
	out := make(map[string]any, len(opts.Extra)+5)
	for k, v := range opts.Extra {
		out[k] = v
	}
	if opts.Temperature != nil {
		out["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		out["num_predict"] = *opts.MaxTokens
	}
	if opts.TopP != nil {
		out["top_p"] = *opts.TopP
	}
	if opts.TopK != nil {
		out["top_k"] = *opts.TopK
	}
	if len(opts.Stop) > 0 {
		out["stop"] = opts.Stop
	}
	return out
}

func (p *Provider) complete(ctx context.Context, messages []core.Message, opts core.ChatOptions) (string, *core.Usage, error) {
	resp, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/api/generate",
		Body: generateRequest{
			Model:   p.base.Model(),
			Prompt:  buildPrompt(messages),
			Stream:  false,
			Options: buildOptions(opts),
		},
	})
	if err != nil {
		return "", nil, err
	}

	result := gjson.ParseBytes(resp.Body)
	text := result.Get("response")
	if !gjson.ValidBytes(resp.Body) || !text.Exists() {
		return "", nil, core.NewProviderError(Name, http.StatusBadGateway, "unexpected response format from ollama", nil)
	}

	var usage *core.Usage
	if evalCount := result.Get("eval_count"); evalCount.Exists() {
		usage = core.NewUsage(int(result.Get("prompt_eval_count").Int()), int(evalCount.Int()), 0)
	}
	return strings.TrimSpace(text.String()), usage, nil
}

// ListModels returns the names of the models pulled on the server.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	resp, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/api/tags",
	})
	if err != nil {
		return nil, err
	}
	names := gjson.GetBytes(resp.Body, "models.#.name").Array()
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, n.String())
	}
	p.base.Log().Logger().DebugContext(ctx, "ollama models listed", "count", len(out))
	return out, nil
}

// CheckAvailability queries /api/tags with a short timeout.
func (p *Provider) CheckAvailability(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()
	_, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/api/tags",
	})
	return err
}

// AsyncProvider is the non-blocking Ollama wrapper.
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
