package ai

import (
	"context"

	"github.com/poiesic/kexpand/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Request is one completion request.
type Request struct {
	System      string
	Prompt      string
	// Temperature overrides the provider default when set.
	Temperature *float64
	// MaxTokens caps the completion. Zero uses the provider default.
	MaxTokens int
	// JSON asks the backend for a JSON object response where supported.
	JSON bool
}

// Temperature returns a pointer to t for Request.Temperature.
func Temperature(t float64) *float64 {
	return &t
}

// Response is the text a provider generated and what it cost in tokens.
// Cost is left zero; the router prices usage from the catalog.
type Response struct {
	Text  string
	Usage core.TokenUsage
}

// Provider generates completions from one model.
// Implementations must be thread-safe for concurrent use.
type Provider interface {
	// Name returns the model identifier this provider serves.
	Name() string

	// Kind returns the backend kind.
	Kind() ProviderKind

	// Generate runs one completion. Errors are *ProviderError values
	// classified by ClassifyError.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Close releases resources held by the provider.
	// After Close is called, the provider should not be used.
	Close() error
}
