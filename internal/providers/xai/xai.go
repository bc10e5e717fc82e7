// Package xai provides the Grok wrapper. xAI serves an OpenAI-compatible
// API, so the wrapper reuses the OpenAI adapter with xAI's endpoint.
package xai

import (
	"llmwrapper/internal/core"
	"llmwrapper/internal/providers"
	"llmwrapper/internal/providers/openai"
)

const (
	Name           = "grok"
	DefaultModel   = "grok-beta"
	defaultBaseURL = "https://api.x.ai/v1"
)

var baseOptions = providers.BaseOptions{
	Name:         Name,
	DefaultModel: DefaultModel,
	RequireKey:   true,
}

// Registration provides factory registration for the Grok provider.
var Registration = providers.Registration{
	Name:         Name,
	DefaultModel: DefaultModel,
	New:          New,
	NewAsync:     NewAsync,
}

// Provider is the blocking Grok wrapper.
type Provider struct {
	*openai.Provider
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
	inner, err := openai.NewCompatible(baseOptions, defaultBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &Provider{Provider: inner}, nil
}

// NewAsync builds the non-blocking wrapper.
func NewAsync(cfg providers.Config, deps providers.Dependencies) (core.AsyncLLM, error) {
	p, err := openai.NewAsyncCompatible(baseOptions, defaultBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return p, nil
}
