// Package llm is the public entry point of the wrapper: one Chat call shape
// over OpenAI, Anthropic, Gemini, Grok and Ollama.
//
//	model, err := llm.GetLLM("openai", llm.Config{APIKey: key})
//	if err != nil {
//		return err
//	}
//	reply, err := model.Chat(ctx, []llm.Message{llm.UserMessage("Hello")})
package llm

import (
	"context"
	"sync"

	"llmwrapper/internal/core"
	"llmwrapper/internal/logging"
	"llmwrapper/internal/providers"
	"llmwrapper/internal/providers/anthropic"
	"llmwrapper/internal/providers/gemini"
	"llmwrapper/internal/providers/ollama"
	"llmwrapper/internal/providers/openai"
	"llmwrapper/internal/providers/xai"
	"llmwrapper/internal/security"
	"llmwrapper/internal/workerpool"
)

type (
	Message      = core.Message
	Role         = core.Role
	Usage        = core.Usage
	ChatOption   = core.ChatOption
	ChatOptions  = core.ChatOptions
	LLM          = core.LLM
	AsyncLLM     = core.AsyncLLM
	Call         = core.Call
	Error        = core.Error
	Config       = providers.Config
	Dependencies = providers.Dependencies
	Registration = providers.Registration
	Factory      = providers.Factory
	Providers    = providers.Providers
	Hooks        = logging.Hooks
	SecurityMode = security.Mode
)

const (
	RoleSystem    = core.RoleSystem
	RoleUser      = core.RoleUser
	RoleAssistant = core.RoleAssistant

	SecurityAdvisory = security.ModeAdvisory
	SecurityStrict   = security.ModeStrict
)

var (
	ErrUnknownProvider = core.ErrUnknownProvider
	ErrConfiguration   = core.ErrConfiguration
	ErrValidation      = core.ErrValidation
)

var (
	SystemMessage    = core.SystemMessage
	UserMessage      = core.UserMessage
	AssistantMessage = core.AssistantMessage

	WithTemperature = core.WithTemperature
	WithMaxTokens   = core.WithMaxTokens
	WithTopP        = core.WithTopP
	WithTopK        = core.WithTopK
	WithStop        = core.WithStop
	WithTimeout     = core.WithTimeout
	WithExtra       = core.WithExtra

	ConfigFromMap     = providers.ConfigFromMap
	WithRequestID     = core.WithRequestID
	MaskSensitiveData = security.MaskSensitiveData
)

// Builtins returns the registrations of the bundled providers.
func Builtins() []Registration {
	return []Registration{
		openai.Registration,
		anthropic.Registration,
		gemini.Registration,
		xai.Registration,
		ollama.Registration,
	}
}

// NewFactory returns a factory with every bundled provider registered.
// Unset dependencies get defaults.
func NewFactory(deps Dependencies) *Factory {
	f := providers.NewFactory(deps)
	for _, r := range Builtins() {
		f.Add(r)
	}
	return f
}

var defaultFactory = sync.OnceValue(func() *Factory {
	logger, _ := logging.New(logging.OptionsFromEnv())
	return NewFactory(Dependencies{
		Logger: logging.NewCallLogger(logger, logging.Hooks{}),
		Pool:   workerpool.New(workerpool.DefaultSize),
	})
})

// Default returns the process-wide factory. Its logger is configured from
// LLMWRAPPER_LOG_LEVEL and LLMWRAPPER_LOG_FILE on first use.
func Default() *Factory {
	return defaultFactory()
}

// GetLLM builds a blocking wrapper from the default factory.
func GetLLM(provider string, cfg Config) (LLM, error) {
	return Default().GetLLM(provider, cfg)
}

// GetAsyncLLM builds a non-blocking wrapper from the default factory.
func GetAsyncLLM(provider string, cfg Config) (AsyncLLM, error) {
	return Default().GetAsyncLLM(provider, cfg)
}

// ListProviders reports the provider names of the default factory.
func ListProviders() Providers {
	return Default().ListProviders()
}

// Gather waits for every call and returns the replies in submission order.
func Gather(ctx context.Context, calls ...*Call) ([]string, error) {
	return core.Gather(ctx, calls...)
}
