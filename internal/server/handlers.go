// Package server exposes the provider factory over HTTP.
package server

import (
	"errors"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"llmwrapper/internal/core"
	"llmwrapper/internal/providers"
	"llmwrapper/internal/security"
)

// Handler holds the HTTP handlers
type Handler struct {
	factory *providers.Factory
	configs map[string]providers.Config

	mu sync.Mutex
	// cache holds one wrapper per provider for its configured model.
	// Wrappers are safe for concurrent use, so requests share them.
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	llm  core.LLM
	err  error
}

// NewHandler creates a new handler with the given factory
func NewHandler(factory *providers.Factory, configs map[string]providers.Config) *Handler {
	return &Handler{
		factory: factory,
		configs: configs,
		cache:   make(map[string]*cacheEntry),
	}
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model,omitempty"`
	Messages []core.Message `json:"messages"`
	Options  map[string]any `json:"options,omitempty"`
}

// ChatResponse is the reply of POST /v1/chat.
type ChatResponse struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Content  string `json:"content"`
}

// Chat handles POST /v1/chat
func (h *Handler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if req.Provider == "" {
		return handleError(c, core.NewInvalidRequestError("provider is required", nil))
	}

	opts, err := core.OptionsFromMap(req.Options)
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid options: "+err.Error(), err))
	}

	llm, err := h.wrapper(req.Provider, req.Model)
	if err != nil {
		return handleError(c, err)
	}

	content, err := llm.Chat(c.Request().Context(), req.Messages, core.WithOptions(opts))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Provider: llm.ProviderName(),
		Model:    llm.Model(),
		Content:  content,
	})
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListProviders handles GET /v1/providers
func (h *Handler) ListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, h.factory.ListProviders())
}

// ListModels handles GET /v1/providers/:provider/models
func (h *Handler) ListModels(c echo.Context) error {
	name := c.Param("provider")
	llm, err := h.wrapper(name, "")
	if err != nil {
		return handleError(c, err)
	}

	lister, ok := llm.(core.ModelLister)
	if !ok {
		return handleError(c, core.NewNotFoundError(name, "provider does not support listing models"))
	}
	models, err := lister.ListModels(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"provider": name,
		"models":   models,
	})
}

// wrapper returns the wrapper for provider. The configured (or default)
// model is served by one shared wrapper per provider; any other model named
// in a request gets a wrapper of its own that is not kept, so request
// bodies cannot grow the cache.
func (h *Handler) wrapper(provider, model string) (core.LLM, error) {
	cfg := h.configs[provider]
	if model == "" || model == cfg.Model {
		return h.shared(provider, cfg)
	}
	if cfg.Model == "" {
		if def, ok := h.factory.DefaultModel(provider); ok && def == model {
			return h.shared(provider, cfg)
		}
	}
	cfg.Model = model
	return h.factory.GetLLM(provider, cfg)
}

// shared builds the provider's wrapper once. The build runs outside h.mu so
// a slow constructor (Ollama's connection check) only delays requests for
// the same provider. Failed builds are dropped and retried on the next
// request.
func (h *Handler) shared(provider string, cfg providers.Config) (core.LLM, error) {
	h.mu.Lock()
	entry, ok := h.cache[provider]
	if !ok {
		entry = &cacheEntry{}
		h.cache[provider] = entry
	}
	h.mu.Unlock()

	entry.once.Do(func() {
		entry.llm, entry.err = h.factory.GetLLM(provider, cfg)
	})
	if entry.err != nil {
		h.mu.Lock()
		if h.cache[provider] == entry {
			delete(h.cache, provider)
		}
		h.mu.Unlock()
		return nil, entry.err
	}
	return entry.llm, nil
}

// handleError converts wrapper errors to JSON responses. Messages are masked
// because vendor errors can echo request content.
func handleError(c echo.Context, err error) error {
	var llmErr *core.Error
	if errors.As(err, &llmErr) {
		body := llmErr.ToJSON()
		if inner, ok := body["error"].(map[string]any); ok {
			inner["message"] = security.MaskText(llmErr.Message)
		}
		return c.JSON(llmErr.HTTPStatusCode(), body)
	}

	return c.JSON(http.StatusBadGateway, map[string]any{
		"error": map[string]any{
			"type":    "provider_error",
			"message": security.MaskText(err.Error()),
		},
	})
}
