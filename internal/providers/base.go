package providers

import (
	"context"
	"errors"
	"slices"

	"llmwrapper/internal/core"
	"llmwrapper/internal/logging"
	"llmwrapper/internal/security"
)

// CallFunc performs one vendor request with the resolved options and
// reports the reply text and, when the vendor returns it, token usage.
type CallFunc func(ctx context.Context, messages []core.Message, opts core.ChatOptions) (string, *core.Usage, error)

// Base carries the state and lifecycle shared by every wrapper: credential
// and URL checks at construction, message checks, call timing, usage and
// error logging around each vendor request. Wrappers hold a *Base and
// delegate to Invoke.
type Base struct {
	name     string
	model    string
	apiKey   string
	baseURL  string
	defaults core.ChatOptions
	deps     Dependencies
}

// BaseOptions describe the provider being constructed.
type BaseOptions struct {
	Name         string
	DefaultModel string
	// RequireKey rejects construction without an API key.
	RequireKey bool
}

// NewBase validates cfg and logs the wrapper initialization.
func NewBase(opts BaseOptions, cfg Config, deps Dependencies) (*Base, error) {
	deps = deps.withDefaults()
	log := deps.Logger

	if cfg.Model == "" {
		cfg.Model = opts.DefaultModel
	}

	if cfg.APIKey == "" {
		if opts.RequireKey {
			return nil, core.NewConfigurationError(opts.Name, "api key is required", nil)
		}
	} else if !security.ValidateAPIKey(cfg.APIKey, opts.Name) {
		log.SecurityEvent(security.EventInvalidAPIKey, map[string]any{
			"provider": opts.Name,
			"reason":   "unexpected api key format",
		})
		if deps.Mode.Strict() {
			return nil, core.NewConfigurationError(opts.Name, "api key has an unexpected format", nil)
		}
	}

	if cfg.BaseURL != "" && !security.ValidateURL(cfg.BaseURL) {
		log.SecurityEvent(security.EventInvalidURL, map[string]any{
			"provider": opts.Name,
			"base_url": cfg.BaseURL,
		})
		if deps.Mode.Strict() {
			return nil, core.NewConfigurationError(opts.Name, "base url must be an absolute http(s) url", nil)
		}
	}

	defaults, err := core.OptionsFromMap(cfg.Options)
	if err != nil {
		var cfgErr *core.Error
		if errors.As(err, &cfgErr) {
			cfgErr.Provider = opts.Name
		}
		return nil, err
	}

	b := &Base{
		name:     opts.Name,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
		defaults: defaults,
		deps:     deps,
	}
	log.ProviderInit(b.name, b.model)
	return b, nil
}

// ProviderName returns the registry name of the wrapper.
func (b *Base) ProviderName() string {
	return b.name
}

// Model returns the model the wrapper is bound to.
func (b *Base) Model() string {
	return b.model
}

// APIKey returns the unmasked credential for building vendor requests.
// Never log it directly.
func (b *Base) APIKey() string {
	return b.apiKey
}

// BaseURL returns the configured base URL, or "" to use the vendor default.
func (b *Base) BaseURL() string {
	return b.baseURL
}

// Defaults returns the options configured at construction.
func (b *Base) Defaults() core.ChatOptions {
	return b.defaults.Clone()
}

// Deps returns the shared dependencies the wrapper was built with.
func (b *Base) Deps() Dependencies {
	return b.deps
}

// Log returns the call logger used for lifecycle events.
func (b *Base) Log() *logging.CallLogger {
	return b.deps.Logger
}

// Invoke runs fn inside the standard call lifecycle and returns its text.
// Vendor errors are logged and returned unchanged.
func (b *Base) Invoke(ctx context.Context, messages []core.Message, callOpts []core.ChatOption, fn CallFunc) (string, error) {
	log := b.deps.Logger
	opts := core.ResolveOptions(b.defaults, callOpts...)

	if issue := security.MessageIssue(messages); issue != "" {
		log.SecurityEvent(security.EventInvalidMessages, map[string]any{
			"provider": b.name,
			"model":    b.model,
			"reason":   issue,
		})
		if b.deps.Mode.Strict() {
			return "", core.NewValidationError(b.name, issue)
		}
	}
	if issue := security.ParameterIssue(opts); issue != "" {
		log.SecurityEvent(security.EventInvalidParameters, map[string]any{
			"provider": b.name,
			"model":    b.model,
			"reason":   issue,
		})
		if b.deps.Mode.Strict() {
			return "", core.NewValidationError(b.name, issue)
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	marker := log.CallStart(ctx, b.name, b.model, len(messages))
	text, usage, err := fn(ctx, messages, opts)
	if err != nil {
		log.CallError(ctx, marker, err)
		log.SecurityEvent(security.EventAPIError, map[string]any{
			"provider":   b.name,
			"model":      b.model,
			"call_id":    marker.CallID,
			"error_type": core.TypeOf(err),
			"error":      err.Error(),
		})
		return "", err
	}
	log.CallEnd(ctx, marker)
	log.TokenUsage(ctx, marker, usage)
	return text, nil
}

// Go runs Invoke on its own goroutine. The messages are copied so the
// caller may reuse its slice immediately.
func (b *Base) Go(ctx context.Context, messages []core.Message, callOpts []core.ChatOption, fn CallFunc) *core.Call {
	msgs := slices.Clone(messages)
	opts := slices.Clone(callOpts)
	return core.Go(ctx, func(ctx context.Context) (string, error) {
		return b.Invoke(ctx, msgs, opts, fn)
	})
}

// Submit runs Invoke on the dependency worker pool.
func (b *Base) Submit(ctx context.Context, messages []core.Message, callOpts []core.ChatOption, fn CallFunc) *core.Call {
	msgs := slices.Clone(messages)
	opts := slices.Clone(callOpts)
	return b.deps.Pool.Submit(ctx, func(ctx context.Context) (string, error) {
		return b.Invoke(ctx, msgs, opts, fn)
	})
}
