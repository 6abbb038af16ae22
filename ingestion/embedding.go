package ingestion

import (
	"context"
	"log/slog"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/core"
)

// embedSummary embeds the node text with embedder and normalizes the
// vector. Embeddings are optional: a failure is logged and yields nil, and
// the node is classified on tags alone.
func embedSummary(ctx context.Context, embedder ai.Embedder, title, summary string, logger *slog.Logger) []float32 {
	if embedder == nil {
		return nil
	}
	vec, err := embedder.EmbedText(ctx, core.EmbeddingText(title, summary))
	if err != nil {
		logger.Warn("embedding failed, classifying without vector", "err", err)
		return nil
	}
	return ai.NormalizeVector(vec)
}
