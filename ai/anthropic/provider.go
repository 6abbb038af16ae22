// Package anthropic serves ai.Provider from Anthropic's messages API through langchaingo.
// Anthropic has no embeddings endpoint; pair it with an openai or ollama embedder.
package anthropic

import (
	"github.com/poiesic/kexpand/ai"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// NewProvider creates a chat provider for an Anthropic model.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []anthropic.Option{
		anthropic.WithToken(config.APIKey),
		anthropic.WithModel(config.Model),
	}
	if config.Host != "" {
		opts = append(opts, anthropic.WithBaseURL(config.Host))
	}
	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, err
	}

	return ai.NewLLMProvider(config, client), nil
}
