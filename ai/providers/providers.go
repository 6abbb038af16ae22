// Package providers builds ai.Provider and ai.Embedder values from an
// ai.Config, selecting the backend by ai.ProviderKind.
package providers

import (
	"fmt"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/ai/anthropic"
	"github.com/poiesic/kexpand/ai/mock"
	"github.com/poiesic/kexpand/ai/ollama"
	"github.com/poiesic/kexpand/ai/openai"
)

// Constructor builds a chat provider from a validated config.
type Constructor func(*ai.Config) (ai.Provider, error)

// EmbedderConstructor builds an embedder from a validated config.
type EmbedderConstructor func(*ai.Config) (ai.Embedder, error)

var constructors = map[ai.ProviderKind]Constructor{
	ai.KindOpenAI:    openai.NewProvider,
	ai.KindDeepSeek:  openai.NewProvider,
	ai.KindAnthropic: anthropic.NewProvider,
	ai.KindOllama:    ollama.NewProvider,
	ai.KindMock:      mock.NewProvider,
}

var embedderConstructors = map[ai.ProviderKind]EmbedderConstructor{
	ai.KindOpenAI:   openai.NewEmbedder,
	ai.KindDeepSeek: openai.NewEmbedder,
	ai.KindOllama:   ollama.NewEmbedder,
	ai.KindMock: func(*ai.Config) (ai.Embedder, error) {
		return mock.NewMockEmbedder(), nil
	},
}

// New builds the chat provider for config.Kind.
func New(config *ai.Config) (ai.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ctor, ok := constructors[config.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ai.ErrUnknownKind, config.Kind)
	}
	return ctor(config)
}

// NewEmbedder builds the embedder for config.Kind.
// Returns ai.ErrNoEmbeddings for kinds without an embeddings API.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ctor, ok := embedderConstructors[config.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ai.ErrNoEmbeddings, config.Kind)
	}
	return ctor(config)
}
