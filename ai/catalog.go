package ai

import (
	"fmt"
	"slices"
	"sync"

	"github.com/poiesic/kexpand/core"
)

// ModelInfo describes a model a provider kind is known to serve.
type ModelInfo struct {
	Provider      ProviderKind `json:"provider" yaml:"provider"`
	Name          string       `json:"name" yaml:"name"`
	ContextWindow int          `json:"context_window" yaml:"context_window"`
	Capabilities  []string     `json:"capabilities" yaml:"capabilities"`
	// Prices are in USD per 1K tokens. Local models are free.
	InputPricePer1K  float64 `json:"input_price_per_1k" yaml:"input_price_per_1k"`
	OutputPricePer1K float64 `json:"output_price_per_1k" yaml:"output_price_per_1k"`
}

// Catalog is the table of known models and their prices.
// It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	models map[ProviderKind][]ModelInfo
}

// NewCatalog creates a catalog holding models.
func NewCatalog(models ...ModelInfo) *Catalog {
	c := &Catalog{models: make(map[ProviderKind][]ModelInfo)}
	for _, m := range models {
		c.Set(m)
	}
	return c
}

// DefaultCatalog returns the built-in model table.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		ModelInfo{Provider: KindOpenAI, Name: "gpt-4-turbo-preview", ContextWindow: 128000, Capabilities: []string{"text", "analysis", "code"}, InputPricePer1K: 0.01, OutputPricePer1K: 0.03},
		ModelInfo{Provider: KindOpenAI, Name: "gpt-4o-mini", ContextWindow: 128000, Capabilities: []string{"text", "analysis", "code"}, InputPricePer1K: 0.00015, OutputPricePer1K: 0.0006},
		ModelInfo{Provider: KindOpenAI, Name: "gpt-3.5-turbo", ContextWindow: 16385, Capabilities: []string{"text", "analysis"}, InputPricePer1K: 0.0005, OutputPricePer1K: 0.0015},
		ModelInfo{Provider: KindAnthropic, Name: "claude-3-opus", ContextWindow: 200000, Capabilities: []string{"text", "analysis", "code"}, InputPricePer1K: 0.015, OutputPricePer1K: 0.075},
		ModelInfo{Provider: KindAnthropic, Name: "claude-3-sonnet", ContextWindow: 200000, Capabilities: []string{"text", "analysis"}, InputPricePer1K: 0.003, OutputPricePer1K: 0.015},
		ModelInfo{Provider: KindDeepSeek, Name: "deepseek-chat", ContextWindow: 64000, Capabilities: []string{"text", "analysis"}, InputPricePer1K: 0.00027, OutputPricePer1K: 0.0011},
		ModelInfo{Provider: KindDeepSeek, Name: "deepseek-coder", ContextWindow: 32768, Capabilities: []string{"text", "code"}, InputPricePer1K: 0.002, OutputPricePer1K: 0.002},
		ModelInfo{Provider: KindOllama, Name: "llama2", ContextWindow: 4096, Capabilities: []string{"text", "analysis"}},
		ModelInfo{Provider: KindOllama, Name: "codellama", ContextWindow: 16384, Capabilities: []string{"text", "code"}},
		ModelInfo{Provider: KindOllama, Name: "mistral", ContextWindow: 8192, Capabilities: []string{"text", "analysis"}},
		ModelInfo{Provider: KindOllama, Name: "qwen2.5:3b", ContextWindow: 32768, Capabilities: []string{"text", "analysis"}},
	)
}

// Set adds or replaces a model entry, e.g. a price override from the config file.
func (c *Catalog) Set(m ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.models[m.Provider]
	i := slices.IndexFunc(list, func(x ModelInfo) bool { return x.Name == m.Name })
	if i >= 0 {
		list[i] = m
		return
	}
	c.models[m.Provider] = append(list, m)
}

// Providers returns the provider kinds with at least one model, in Kinds order.
func (c *Catalog) Providers() []ProviderKind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ProviderKind, 0, len(c.models))
	for _, k := range Kinds {
		if len(c.models[k]) > 0 {
			out = append(out, k)
		}
	}
	return out
}

// Models returns the models known for kind.
func (c *Catalog) Models(kind ProviderKind) ([]ModelInfo, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.models[kind]), nil
}

// Lookup returns the entry for model under kind.
func (c *Catalog) Lookup(kind ProviderKind, model string) (ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.models[kind] {
		if m.Name == model {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// Cost prices usage for model. Unknown models cost nothing.
func (c *Catalog) Cost(kind ProviderKind, model string, usage core.TokenUsage) float64 {
	m, ok := c.Lookup(kind, model)
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)/1000*m.InputPricePer1K +
		float64(usage.CompletionTokens)/1000*m.OutputPricePer1K
}

// PriceLabel renders the price the way the model listing shows it.
func (m ModelInfo) PriceLabel() string {
	if m.InputPricePer1K == 0 && m.OutputPricePer1K == 0 {
		return "Free (Local)"
	}
	return fmt.Sprintf("$%g/1K input, $%g/1K output", m.InputPricePer1K, m.OutputPricePer1K)
}
