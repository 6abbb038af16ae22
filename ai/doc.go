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


// Package ai provides abstractions for the AI services used by kexpand.
//
// This package defines the interfaces the ingestion engine depends on, so the
// core domain and business logic depend on abstractions rather than concrete
// backends.
//
// # Design Principles
//
// The package is designed around two interfaces:
//
//   - Provider: Generates completions from one model
//   - Embedder: Generates vector embeddings from text
//
// Backends are chosen at configuration time by Config.Kind through the
// constructor table in ai/providers; nothing downstream inspects concrete types.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI and OpenAI-compatible services (also DeepSeek)
//   - ai/anthropic: Anthropic messages API
//   - ai/ollama: Ollama native API, chat and embeddings
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// All real backends go through langchaingo and share LLMProvider, which maps
// requests to llms.MessageContent and reads token usage from the response.
//
// # Errors
//
// Backend failures are returned as *ProviderError, classified by ClassifyError
// into timeout, rate_limit, auth, malformed, unavailable or cancelled, and
// matching core.ErrProvider with errors.Is.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithKind(ai.KindOllama), ai.WithModel("mistral"))
//	provider, err := providers.New(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	resp, err := provider.Generate(ctx, ai.Request{Prompt: "Summarize ..."})
package ai
