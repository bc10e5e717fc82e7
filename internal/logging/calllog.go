package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"llmwrapper/internal/core"
	"llmwrapper/internal/security"
)

// CallMarker identifies one provider call between CallStart and CallEnd.
type CallMarker struct {
	Provider     string
	Model        string
	MessageCount int
	CallID       string
	Start        time.Time
}

// Hooks are optional callbacks fired alongside the log lines, e.g. to feed
// metrics. Nil hooks are skipped.
type Hooks struct {
	OnCallStart     func(ctx context.Context, m CallMarker)
	OnCallEnd       func(ctx context.Context, m CallMarker, elapsed time.Duration, err error)
	OnTokenUsage    func(ctx context.Context, m CallMarker, usage core.Usage)
	OnSecurityEvent func(kind string)
}

// CallLogger emits the standard lifecycle lines of a provider wrapper:
// initialization, call start, call end, token usage and security events.
// It is safe for concurrent use.
type CallLogger struct {
	logger *slog.Logger
	hooks  Hooks
	now    func() time.Time
}

// NewCallLogger creates a CallLogger. A nil logger uses slog.Default().
func NewCallLogger(logger *slog.Logger, hooks Hooks) *CallLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallLogger{
		logger: logger,
		hooks:  hooks,
		now:    time.Now,
	}
}

// Logger returns the underlying logger.
func (l *CallLogger) Logger() *slog.Logger {
	return l.logger
}

// ProviderInit logs wrapper construction.
func (l *CallLogger) ProviderInit(provider, model string) {
	l.logger.Info("provider initialized",
		"provider", provider,
		"model", model,
	)
}

// CallStart logs the beginning of a call and returns its marker. The call
// ID is the request ID carried by ctx, or a fresh UUID.
func (l *CallLogger) CallStart(ctx context.Context, provider, model string, messageCount int) CallMarker {
	id := core.GetRequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	m := CallMarker{
		Provider:     provider,
		Model:        model,
		MessageCount: messageCount,
		CallID:       id,
		Start:        l.now(),
	}

	l.logger.InfoContext(ctx, "calling provider",
		"provider", provider,
		"model", model,
		"messages", messageCount,
		"call_id", id,
	)
	if l.hooks.OnCallStart != nil {
		l.hooks.OnCallStart(ctx, m)
	}
	return m
}

// CallEnd logs the elapsed wall-clock time of a successful call.
func (l *CallLogger) CallEnd(ctx context.Context, m CallMarker) {
	elapsed := l.now().Sub(m.Start)
	l.logger.InfoContext(ctx, "provider response received",
		"provider", m.Provider,
		"model", m.Model,
		"call_id", m.CallID,
		"duration", elapsed,
	)
	if l.hooks.OnCallEnd != nil {
		l.hooks.OnCallEnd(ctx, m, elapsed, nil)
	}
}

// CallError logs a failed call.
func (l *CallLogger) CallError(ctx context.Context, m CallMarker, err error) {
	elapsed := l.now().Sub(m.Start)
	l.logger.ErrorContext(ctx, "provider call failed",
		"provider", m.Provider,
		"model", m.Model,
		"call_id", m.CallID,
		"duration", elapsed,
		"error_type", core.TypeOf(err),
		"error", err,
	)
	if l.hooks.OnCallEnd != nil {
		l.hooks.OnCallEnd(ctx, m, elapsed, err)
	}
}

// TokenUsage logs the token counts of a call. A nil usage is reported as
// unavailable.
func (l *CallLogger) TokenUsage(ctx context.Context, m CallMarker, usage *core.Usage) {
	if usage == nil {
		l.logger.WarnContext(ctx, "token usage not available",
			"provider", m.Provider,
			"model", m.Model,
			"call_id", m.CallID,
		)
		return
	}
	l.logger.InfoContext(ctx, "token usage",
		"provider", m.Provider,
		"model", m.Model,
		"call_id", m.CallID,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
	)
	if l.hooks.OnTokenUsage != nil {
		l.hooks.OnTokenUsage(ctx, m, *usage)
	}
}

// SecurityEvent logs a masked security event.
func (l *CallLogger) SecurityEvent(kind string, details map[string]any) {
	security.LogSecurityEvent(l.logger, kind, details)
	if l.hooks.OnSecurityEvent != nil {
		l.hooks.OnSecurityEvent(kind)
	}
}
