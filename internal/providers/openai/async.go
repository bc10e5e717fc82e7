package openai

import (
	"context"

	"llmwrapper/internal/core"
	"llmwrapper/internal/providers"
)

// AsyncProvider is the non-blocking OpenAI wrapper. Each call runs on its
// own goroutine.
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

// NewAsyncCompatible is the non-blocking counterpart of NewCompatible.
func NewAsyncCompatible(opts providers.BaseOptions, defaultBaseURL string, cfg providers.Config, deps providers.Dependencies) (*AsyncProvider, error) {
	p, err := NewCompatible(opts, defaultBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &AsyncProvider{Provider: p}, nil
}

// ChatAsync starts the call and returns immediately.
func (p *AsyncProvider) ChatAsync(ctx context.Context, messages []core.Message, opts ...core.ChatOption) *core.Call {
	return p.base.Go(ctx, messages, opts, p.complete)
}
