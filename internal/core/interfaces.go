package core

import "context"

// LLM is the blocking chat contract every provider wrapper implements.
type LLM interface {
	// Chat sends the conversation and returns the assistant's reply text.
	Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error)

	ProviderName() string
	Model() string
}

// AsyncLLM is the non-blocking variant. ChatAsync returns immediately; the
// reply is delivered through the returned Call.
type AsyncLLM interface {
	ChatAsync(ctx context.Context, messages []Message, opts ...ChatOption) *Call

	ProviderName() string
	Model() string
}

// ModelLister is implemented by wrappers whose backend can enumerate models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// AvailabilityChecker is implemented by wrappers that can check their
// backend without sending a chat request.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context) error
}
