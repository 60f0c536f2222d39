package llm

import (
	"context"

	"github.com/ellenlabs/ellen/internal/domain"
)

// Request contains chat generation parameters. The retrieved materials
// context is folded into System by the caller.
type Request struct {
	System   string
	History  []domain.Message
	Question string
}

// Response contains the finished generation result.
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// TokenFunc receives each streamed text delta in order. Returning an error
// aborts the generation.
type TokenFunc func(delta string) error

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// StreamChat generates an answer, delivering deltas through onToken as
	// they arrive. The returned Response carries the full accumulated text.
	StreamChat(ctx context.Context, req Request, model string, onToken TokenFunc) (*Response, error)

	// Complete runs a one-shot, non-streamed generation. Used for titles
	// and follow-up suggestions.
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// ProviderFactory creates a provider instance from per-project settings.
type ProviderFactory func(config map[string]any) (Provider, error)
