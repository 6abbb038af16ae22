// Package openai provides AI service implementations using OpenAI-compatible APIs.
//
// This package implements ai.Provider and ai.Embedder using the langchaingo
// library to communicate with OpenAI or OpenAI-compatible services (DeepSeek,
// Ollama's /v1 endpoint, LocalAI, vLLM).
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),  // /v1 added automatically
//	    ai.WithModel("qwen2.5:3b"),
//	    ai.WithEmbeddingModel("embeddinggemma"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	resp, err := provider.Generate(ctx, ai.Request{Prompt: "Summarize ..."})
//
//	embedder, err := openai.NewEmbedder(config)
//	vector, err := embedder.EmbedText(ctx, "sample text")
package openai
