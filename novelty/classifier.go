// Package novelty decides whether a candidate summary adds new information
// to the knowledge graph and which existing nodes it relates to.
package novelty

import (
	"context"
	"log/slog"

	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/storage"
)

const (
	DefaultTopK = 8
	MaxTopK     = 50

	// DefaultNoveltyThreshold is the confidence above which a candidate is new.
	DefaultNoveltyThreshold = 0.5

	// DefaultLinkThreshold is the similarity above which a match becomes an edge.
	DefaultLinkThreshold = 0.3
)

// Candidate is the summarized content being classified.
type Candidate struct {
	Summary   string
	Tags      []string
	Embedding []float32
	// Exclude is left out of the comparison, e.g. the node being re-ingested.
	Exclude core.ID
}

// Relation is an existing node the candidate should be linked to.
type Relation struct {
	ID         core.ID `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Verdict is the outcome of classifying one candidate.
type Verdict struct {
	IsNew      bool
	Confidence float64
	Related    []Relation
}

// Classifier compares candidates against the graph.
type Classifier struct {
	graph            storage.GraphStore
	topK             int
	noveltyThreshold float64
	linkThreshold    float64
	logger           *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier) error

// WithTopK sets how many nearest nodes are compared. Accepts 1..MaxTopK.
func WithTopK(k int) Option {
	return func(c *Classifier) error {
		if k < 1 || k > MaxTopK {
			return ErrInvalidTopK
		}
		c.topK = k
		return nil
	}
}

// WithNoveltyThreshold sets the confidence a candidate must exceed to be new.
func WithNoveltyThreshold(t float64) Option {
	return func(c *Classifier) error {
		if t < 0 || t > 1 {
			return ErrInvalidThreshold
		}
		c.noveltyThreshold = t
		return nil
	}
}

// WithLinkThreshold sets the similarity a match must exceed to be related.
func WithLinkThreshold(t float64) Option {
	return func(c *Classifier) error {
		if t < 0 || t > 1 {
			return ErrInvalidThreshold
		}
		c.linkThreshold = t
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewClassifier creates a classifier over graph.
func NewClassifier(graph storage.GraphStore, opts ...Option) (*Classifier, error) {
	if graph == nil {
		return nil, ErrGraphStoreRequired
	}
	c := &Classifier{
		graph:            graph,
		topK:             DefaultTopK,
		noveltyThreshold: DefaultNoveltyThreshold,
		linkThreshold:    DefaultLinkThreshold,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Classify compares candidate with its nearest nodes.
//
// Confidence is 1 minus the best similarity, so it never increases as the
// closest match gets closer. An empty graph yields a new candidate with
// confidence 1.
func (c *Classifier) Classify(ctx context.Context, candidate Candidate) (*Verdict, error) {
	matches, err := c.graph.Similar(ctx, core.SimilarityQuery{
		Vector:    candidate.Embedding,
		Tags:      candidate.Tags,
		ExcludeID: candidate.Exclude,
	}, c.topK)
	if err != nil {
		c.logger.Error("similarity query failed", "err", err)
		return nil, err
	}

	best := 0.0
	related := make([]Relation, 0, len(matches))
	for _, m := range matches {
		best = max(best, m.Score)
		if m.Score > c.linkThreshold {
			related = append(related, Relation{ID: m.Node.Id, Similarity: m.Score})
		}
	}

	confidence := min(max(1-best, 0), 1)
	v := &Verdict{
		IsNew:      confidence > c.noveltyThreshold,
		Confidence: confidence,
		Related:    related,
	}
	c.logger.Debug("classified candidate", "matches", len(matches), "best", best, "is_new", v.IsNew, "related", len(related))
	return v, nil
}
