package storage

import (
	"testing"

	"github.com/poiesic/kexpand/core"
	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"go", "graphs"}, []string{"Go", "llm"}), 1e-9)
	assert.Equal(t, 0.0, Jaccard(nil, []string{"go"}))
	assert.Equal(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a"}))
}

func TestScore(t *testing.T) {
	node := &core.KnowledgeNode{Tags: []string{"go"}, Vector: []float32{1, 0}}

	t.Run("tags only without query vector", func(t *testing.T) {
		s := Score(core.SimilarityQuery{Tags: []string{"go"}}, node)
		assert.Equal(t, 1.0, s)
	})

	t.Run("hybrid with vectors", func(t *testing.T) {
		s := Score(core.SimilarityQuery{Tags: []string{"rust"}, Vector: []float32{1, 0}}, node)
		assert.InDelta(t, VectorWeight, s, 1e-9)
	})

	t.Run("opposite vectors clamp to zero", func(t *testing.T) {
		s := Score(core.SimilarityQuery{Vector: []float32{-1, 0}}, node)
		assert.Equal(t, 0.0, s)
	})

	t.Run("deterministic", func(t *testing.T) {
		q := core.SimilarityQuery{Tags: []string{"go", "x"}, Vector: []float32{0.3, 0.7}}
		assert.Equal(t, Score(q, node), Score(q, node))
	})
}
