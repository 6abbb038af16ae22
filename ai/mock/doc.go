// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Provider and ai.Embedder
// for use in unit tests. The mocks allow tests to run without external AI
// service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	provider := mock.NewMockProvider("test-model")
//	resp, err := provider.Generate(ctx, ai.Request{Prompt: "text"})
//
//	// Custom behavior injection
//	provider.GenerateFunc = func(ctx context.Context, req ai.Request) (*ai.Response, error) {
//	    return nil, errors.New("boom")
//	}
//
//	// Check call counts
//	count := provider.CallCount()
//
// # Default Behavior
//
//   - MockProvider: Returns a structured summary JSON derived from the prompt
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//
// Both are safe for concurrent use as long as the injected funcs are.
package mock
