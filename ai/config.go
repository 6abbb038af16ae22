// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"fmt"
	"strings"

	"github.com/poiesic/kexpand/core"
)

// ProviderKind selects the backend used to serve a model.
type ProviderKind string

const (
	KindOpenAI    ProviderKind = "openai"
	KindDeepSeek  ProviderKind = "deepseek"
	KindAnthropic ProviderKind = "anthropic"
	KindOllama    ProviderKind = "ollama"
	KindMock      ProviderKind = "mock"
)

// Kinds lists the provider kinds a Config may name.
var Kinds = []ProviderKind{KindOpenAI, KindDeepSeek, KindAnthropic, KindOllama, KindMock}

// ParseKind converts s into a ProviderKind.
func ParseKind(s string) (ProviderKind, error) {
	k := ProviderKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Config holds configuration for one model served by one provider.
type Config struct {
	// Kind selects the backend. Default: openai (any OpenAI-compatible server).
	Kind ProviderKind `json:"provider" yaml:"provider"`

	// Host is the base URL of the chat API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	Host string `json:"api_base,omitempty" yaml:"host"`

	// EmbeddingHost is the base URL of the embedding API. Defaults to Host.
	EmbeddingHost string `json:"embedding_host,omitempty" yaml:"embedding_host"`

	// APIKey authenticates against hosted providers.
	// Local OpenAI-compatible servers accept "none".
	APIKey string `json:"api_key,omitempty" yaml:"api_key"`

	// Model is the chat model identifier.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	Model string `json:"model_name" yaml:"model"`

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model"`

	// Temperature is the default sampling temperature for calls that don't set one.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxTokens caps completions when a call doesn't set its own limit. Zero means no cap.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens"`

	// ContextWindow overrides the catalog's context window for this model.
	ContextWindow int `json:"context_window,omitempty" yaml:"context_window"`

	// Streaming requests the completion as a token stream. The chunks are
	// joined, so callers still receive one response.
	Streaming bool `json:"streaming" yaml:"streaming"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithKind sets the provider kind.
func WithKind(kind ProviderKind) ConfigOption {
	return func(c *Config) {
		c.Kind = kind
	}
}

// WithHost sets the chat host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithModel sets the chat model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithMaxTokens sets the default completion cap.
func WithMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// WithStreaming enables streamed completions.
func WithStreaming(enabled bool) ConfigOption {
	return func(c *Config) {
		c.Streaming = enabled
	}
}

// DefaultConfig returns a Config for a local OpenAI-compatible server.
func DefaultConfig() *Config {
	return &Config{
		Kind:           KindOpenAI,
		Host:           "http://localhost:11434/v1",
		Model:          "qwen2.5:3b",
		EmbeddingModel: "embeddinggemma",
		Temperature:    0.7,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithKind(KindAnthropic),
//	    WithModel("claude-3-sonnet"),
//	    WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// ModelID returns "provider/model", the display id of this config.
func (c *Config) ModelID() string {
	return string(c.Kind) + "/" + c.Model
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible hosts get a /v1 suffix; Ollama hosts lose it, since the
// native Ollama API is served from the root.
func (c *Config) Normalize() {
	c.Kind = ProviderKind(strings.ToLower(strings.TrimSpace(string(c.Kind))))
	if c.Kind == "" {
		c.Kind = KindOpenAI
	}
	c.Model = strings.TrimSpace(c.Model)

	switch c.Kind {
	case KindOpenAI, KindDeepSeek:
		if c.Host == "" && c.Kind == KindDeepSeek {
			c.Host = "https://api.deepseek.com/v1"
		}
		c.Host = withV1(c.Host)
		c.EmbeddingHost = withV1(c.EmbeddingHost)
	case KindOllama:
		if c.Host == "" {
			c.Host = "http://localhost:11434"
		}
		c.Host = withoutV1(c.Host)
		c.EmbeddingHost = withoutV1(c.EmbeddingHost)
	}
	if c.EmbeddingHost == "" {
		c.EmbeddingHost = c.Host
	}
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

func withoutV1(host string) string {
	host = strings.TrimSuffix(host, "/")
	return strings.TrimSuffix(host, "/v1")
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if c.Model == "" {
		return fmt.Errorf("%w: ai config: Model is required", core.ErrConfiguration)
	}
	if c.Kind == KindAnthropic && c.APIKey == "" {
		return fmt.Errorf("%w: ai config: APIKey is required for anthropic", core.ErrConfiguration)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: ai config: Temperature must be between 0 and 2", core.ErrConfiguration)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: ai config: MaxTokens must not be negative", core.ErrConfiguration)
	}
	return nil
}
