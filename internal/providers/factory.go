// Package providers holds the provider registry, the factory that resolves
// a provider name to a configured wrapper, and the lifecycle shared by all
// wrappers.
package providers

import (
	"maps"
	"slices"

	"llmwrapper/internal/core"
)

// Builder creates a blocking wrapper from resolved configuration.
type Builder func(cfg Config, deps Dependencies) (core.LLM, error)

// AsyncBuilder creates a non-blocking wrapper from resolved configuration.
type AsyncBuilder func(cfg Config, deps Dependencies) (core.AsyncLLM, error)

// Registration describes one provider. A provider may offer a sync
// builder, an async builder or both.
type Registration struct {
	Name         string
	DefaultModel string
	// Defaults are merged under the caller's config: BaseURL fills an empty
	// base URL and Options fill missing option keys.
	Defaults Config
	New      Builder
	NewAsync AsyncBuilder
}

// Factory maps provider names to builders. Populate it during startup;
// it is read-only afterwards and safe for concurrent lookups.
type Factory struct {
	deps  Dependencies
	sync  map[string]Registration
	async map[string]Registration
}

// NewFactory creates an empty factory. Unset dependencies get defaults.
func NewFactory(deps Dependencies) *Factory {
	return &Factory{
		deps:  deps.withDefaults(),
		sync:  make(map[string]Registration),
		async: make(map[string]Registration),
	}
}

// Add registers the builders present in r. A later registration with the
// same name replaces the earlier one.
func (f *Factory) Add(r Registration) {
	if r.New != nil {
		f.sync[r.Name] = r
	}
	if r.NewAsync != nil {
		f.async[r.Name] = r
	}
}

// Register adds a blocking builder.
func (f *Factory) Register(name, defaultModel string, builder Builder) {
	f.Add(Registration{Name: name, DefaultModel: defaultModel, New: builder})
}

// RegisterAsync adds a non-blocking builder.
func (f *Factory) RegisterAsync(name, defaultModel string, builder AsyncBuilder) {
	f.Add(Registration{Name: name, DefaultModel: defaultModel, NewAsync: builder})
}

// GetLLM builds the blocking wrapper registered under name. An unknown name
// fails with an unknown-provider error before any vendor is contacted.
func (f *Factory) GetLLM(name string, cfg Config) (core.LLM, error) {
	r, ok := f.sync[name]
	if !ok {
		return nil, core.NewUnknownProviderError(name, sortedKeys(f.sync))
	}
	return r.New(resolve(r, cfg), f.deps)
}

// GetAsyncLLM builds the non-blocking wrapper registered under name.
func (f *Factory) GetAsyncLLM(name string, cfg Config) (core.AsyncLLM, error) {
	r, ok := f.async[name]
	if !ok {
		return nil, core.NewUnknownProviderError(name, sortedKeys(f.async))
	}
	return r.NewAsync(resolve(r, cfg), f.deps)
}

// Providers lists registered names per variant.
type Providers struct {
	Sync  []string `json:"sync"`
	Async []string `json:"async"`
}

// ListProviders returns the registered names, sorted.
func (f *Factory) ListProviders() Providers {
	return Providers{
		Sync:  sortedKeys(f.sync),
		Async: sortedKeys(f.async),
	}
}

// DefaultModel returns the default model of a registered provider.
func (f *Factory) DefaultModel(name string) (string, bool) {
	if r, ok := f.sync[name]; ok {
		return r.DefaultModel, true
	}
	if r, ok := f.async[name]; ok {
		return r.DefaultModel, true
	}
	return "", false
}

// Dependencies returns the shared services passed to builders.
func (f *Factory) Dependencies() Dependencies {
	return f.deps
}

func resolve(r Registration, cfg Config) Config {
	out := cfg.clone()
	if out.Model == "" {
		out.Model = r.DefaultModel
	}
	if out.BaseURL == "" {
		out.BaseURL = r.Defaults.BaseURL
	}
	for k, v := range r.Defaults.Options {
		if _, set := out.Options[k]; !set {
			out.setOption(k, v)
		}
	}
	return out
}

func sortedKeys(m map[string]Registration) []string {
	return slices.Sorted(maps.Keys(m))
}
