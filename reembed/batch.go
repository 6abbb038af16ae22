package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/retry"
	"github.com/poiesic/kexpand/storage"
)

// BatchProcessor embeds batches of nodes and writes them back.
type BatchProcessor struct {
	graph          storage.GraphStore
	embedder       ai.Embedder
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxAttempts: maximum number of embedding attempts per batch
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(graph storage.GraphStore, embedder ai.Embedder, maxAttempts int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		graph:          graph,
		embedder:       embedder,
		maxAttempts:    maxAttempts,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process generates embeddings for a batch of nodes and updates them in the store.
// Vectors are normalized after embedding.
func (bp *BatchProcessor) Process(ctx context.Context, nodes []*core.KnowledgeNode) error {
	if len(nodes) == 0 {
		return nil
	}

	texts := make([]string, len(nodes))
	for i, node := range nodes {
		texts[i] = core.EmbeddingText(node.Title, node.Summary)
	}

	var embeddings [][]float32
	err := retry.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxAttempts, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxAttempts, err)
	}

	if len(embeddings) != len(nodes) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(nodes), len(embeddings))
	}

	for i, node := range nodes {
		node.Vector = ai.NormalizeVector(embeddings[i])
		if _, err := bp.graph.UpsertNode(ctx, node); err != nil {
			return fmt.Errorf("failed to update node %d: %w", node.Id, err)
		}
	}
	return nil
}
