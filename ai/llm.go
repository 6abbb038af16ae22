package ai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/kexpand/core"
	"github.com/tmc/langchaingo/llms"
)

// LLMProvider adapts a langchaingo model to Provider.
// The backend packages construct the langchaingo client and wrap it here.
type LLMProvider struct {
	kind     ProviderKind
	model    string
	client   llms.Model
	defaults Config
	logger   *slog.Logger
}

var _ Provider = (*LLMProvider)(nil)

// NewLLMProvider wraps client. Temperature and MaxTokens from config are
// used for requests that leave them unset.
func NewLLMProvider(config *Config, client llms.Model) *LLMProvider {
	return &LLMProvider{
		kind:     config.Kind,
		model:    config.Model,
		client:   client,
		defaults: *config,
		logger:   slog.Default().With("component", string(config.Kind)+"-provider", "model", config.Model),
	}
}

// Name returns the model identifier.
func (p *LLMProvider) Name() string {
	return p.model
}

// Kind returns the backend kind.
func (p *LLMProvider) Kind() ProviderKind {
	return p.kind
}

// Generate runs one chat completion.
func (p *LLMProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	content := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	temperature := p.defaults.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.defaults.MaxTokens
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}
	var streamed strings.Builder
	if p.defaults.Streaming {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			streamed.Write(chunk)
			return nil
		}))
	}

	resp, err := p.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		p.logger.Debug("generation failed", "err", err)
		return nil, NewProviderError(p.kind, p.model, err)
	}
	if len(resp.Choices) < 1 {
		return nil, NewProviderError(p.kind, p.model, ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	text := choice.Content
	if text == "" {
		text = streamed.String()
	}
	return &Response{
		Text:  text,
		Usage: UsageFromGenerationInfo(choice.GenerationInfo),
	}, nil
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *LLMProvider) Close() error {
	p.logger.Debug("closing provider")
	return nil
}

// UsageFromGenerationInfo reads token counts from a langchaingo choice.
// OpenAI-style backends report Prompt/Completion/TotalTokens, Anthropic
// reports Input/OutputTokens.
func UsageFromGenerationInfo(info map[string]any) core.TokenUsage {
	var u core.TokenUsage
	u.PromptTokens = firstInt(info, "PromptTokens", "InputTokens")
	u.CompletionTokens = firstInt(info, "CompletionTokens", "OutputTokens")
	u.TotalTokens = firstInt(info, "TotalTokens")
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func firstInt(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
