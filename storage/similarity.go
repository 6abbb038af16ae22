package storage

import (
	"math"

	"github.com/poiesic/kexpand/core"
)

// Weights of the hybrid similarity score when both sides carry embeddings.
const (
	VectorWeight = 0.8
	TagWeight    = 0.2
)

// Score computes the similarity between query and node in [0,1].
//
// With embeddings on both sides the score is VectorWeight*cosine + TagWeight*jaccard,
// where negative cosine is clamped to 0. Otherwise the tag Jaccard index is used alone.
// The function is deterministic and symmetric in its inputs.
func Score(query core.SimilarityQuery, node *core.KnowledgeNode) float64 {
	jaccard := Jaccard(query.Tags, node.Tags)
	if len(query.Vector) == 0 || len(node.Vector) == 0 {
		return jaccard
	}
	cos := Cosine(query.Vector, node.Vector)
	if cos < 0 {
		cos = 0
	}
	return clamp01(VectorWeight*cos + TagWeight*jaccard)
}

// Cosine returns the cosine similarity of a and b over their common length.
// Zero vectors have similarity 0.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(dot/(math.Sqrt(na)*math.Sqrt(nb)), -1, 1)
}

// Jaccard returns |a∩b| / |a∪b| over normalized tags. Two empty sets score 0.
func Jaccard(a, b []string) float64 {
	a, b = core.NormalizeTags(a), core.NormalizeTags(b)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
