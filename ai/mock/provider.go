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


package mock

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/core"
)

// MockProvider is a test double for ai.Provider.
// It allows custom behavior injection via GenerateFunc.
type MockProvider struct {
	// GenerateFunc is called by Generate if set.
	// If nil, Generate returns a deterministic JSON summary of the prompt.
	GenerateFunc func(ctx context.Context, req ai.Request) (*ai.Response, error)

	name      string
	callCount atomic.Int64
	closed    atomic.Bool
}

var _ ai.Provider = (*MockProvider)(nil)

// NewMockProvider creates a mock provider serving model name.
// Note: Returns concrete type to allow test assertions.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// NewFailingProvider creates a mock provider whose every call fails with err.
func NewFailingProvider(name string, err error) *MockProvider {
	p := NewMockProvider(name)
	p.GenerateFunc = func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		return nil, ai.NewProviderError(ai.KindMock, name, err)
	}
	return p
}

// NewProvider builds a mock provider from config, for use through the
// provider constructor table.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return NewMockProvider(config.Model), nil
}

// Name returns the model name.
func (p *MockProvider) Name() string {
	return p.name
}

// Kind returns ai.KindMock.
func (p *MockProvider) Kind() ai.ProviderKind {
	return ai.KindMock
}

// Generate runs GenerateFunc or the default deterministic behavior.
func (p *MockProvider) Generate(ctx context.Context, req ai.Request) (*ai.Response, error) {
	p.callCount.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, ai.NewProviderError(ai.KindMock, p.name, err)
	}
	if p.GenerateFunc != nil {
		return p.GenerateFunc(ctx, req)
	}
	return SummaryResponse(req.Prompt), nil
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed.Load()
}

// CallCount returns the number of times Generate was called.
func (p *MockProvider) CallCount() int {
	return int(p.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (p *MockProvider) Reset() {
	p.callCount.Store(0)
	p.GenerateFunc = nil
}

// SummaryResponse builds the structured summary JSON the ingestion pipeline
// expects, derived deterministically from text.
// Tags are the first three distinct words longer than three letters.
func SummaryResponse(text string) *ai.Response {
	words := strings.Fields(strings.ToLower(text))
	var tags []string
	seen := map[string]bool{}
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) <= 3 || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
		if len(tags) == 3 {
			break
		}
	}

	title := strings.TrimSpace(text)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if len(title) > 60 {
		title = title[:60]
	}

	summary := map[string]any{
		"title":        title,
		"summary":      strings.TrimSpace(text),
		"main_points":  []string{title},
		"topics":       tags,
		"entities":     []string{},
		"key_concepts": map[string]string{},
		"tags":         tags,
	}
	body, _ := json.Marshal(summary)
	tokens := len(words)
	return &ai.Response{
		Text: string(body),
		Usage: core.TokenUsage{
			PromptTokens:     tokens,
			CompletionTokens: tokens / 2,
			TotalTokens:      tokens + tokens/2,
		},
	}
}
