// Package graph commits classified nodes and their relations to the
// knowledge graph.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/novelty"
	"github.com/poiesic/kexpand/retry"
	"github.com/poiesic/kexpand/storage"
)

const stripes = 256

// ErrGraphStoreRequired is returned when a graph store is not provided.
var ErrGraphStoreRequired = errors.New("graph store required")

// Linker writes nodes and edges. Writes for the same locator or the same
// node pair are serialized through striped locks; unrelated writes run
// concurrently.
type Linker struct {
	graph       storage.GraphStore
	nodeLocks   [stripes]sync.Mutex
	edgeLocks   [stripes]sync.Mutex
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// Option configures a Linker.
type Option func(*Linker) error

// WithRetry sets the commit attempts and backoff base.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(l *Linker) error {
		if maxAttempts <= 0 {
			return fmt.Errorf("%w: %w", core.ErrConfiguration, retry.ErrInvalidMaxAttempts)
		}
		l.maxAttempts = maxAttempts
		l.baseDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Linker) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// NewLinker creates a linker over graph.
func NewLinker(graph storage.GraphStore, opts ...Option) (*Linker, error) {
	if graph == nil {
		return nil, ErrGraphStoreRequired
	}
	l := &Linker{
		graph:       graph,
		maxAttempts: 3,
		baseDelay:   50 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Commit stores node, replacing any node ingested from the same locator,
// and links it to every related node that exists. Returns the node's id.
// Failures are wrapped in core.ErrGraphWrite.
func (l *Linker) Commit(ctx context.Context, node *core.KnowledgeNode, related []novelty.Relation) (core.ID, error) {
	if err := core.ValidateNode(node); err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrGraphWrite, err)
	}
	var id core.ID
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: l.maxAttempts,
		BaseDelay:   l.baseDelay,
		Retryable:   transient,
		OnRetry: func(attempt int, err error) {
			l.logger.Warn("retrying graph commit", "locator", node.SourceLocator, "attempt", attempt, "err", err)
		},
	}, func(ctx context.Context, _ int) error {
		var err error
		id, err = l.commit(ctx, node, related)
		return err
	})
	if err != nil {
		if errors.Is(err, core.ErrGraphWrite) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", core.ErrGraphWrite, err)
	}
	return id, nil
}

func (l *Linker) commit(ctx context.Context, node *core.KnowledgeNode, related []novelty.Relation) (core.ID, error) {
	mu := &l.nodeLocks[stripe(core.IDFromContent(node.SourceLocator))]
	mu.Lock()
	defer mu.Unlock()

	id, err := l.graph.UpsertNode(ctx, node)
	if err != nil {
		return 0, fmt.Errorf("%w: upserting node %q: %w", core.ErrGraphWrite, node.SourceLocator, err)
	}

	linked := 0
	for _, rel := range related {
		if rel.ID == id {
			continue
		}
		if err := l.link(ctx, id, rel.ID, rel.Similarity); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				l.logger.Debug("skipping link to unknown node", "from", id, "to", rel.ID)
				continue
			}
			return 0, fmt.Errorf("%w: linking %d-%d: %w", core.ErrGraphWrite, id, rel.ID, err)
		}
		linked++
	}
	l.logger.Debug("committed node", "id", id, "locator", node.SourceLocator, "edges", linked)
	return id, nil
}

func (l *Linker) link(ctx context.Context, a, b core.ID, weight float64) error {
	lo, hi := core.OrderedPair(a, b)
	mu := &l.edgeLocks[stripe(lo*31+hi)]
	mu.Lock()
	defer mu.Unlock()
	_, err := l.graph.UpsertEdge(ctx, a, b, clampWeight(weight))
	return err
}

// clampWeight maps w into (0,1].
func clampWeight(w float64) float64 {
	const floor = 1e-6
	if w > 1 {
		return 1
	}
	if w < floor {
		return floor
	}
	return w
}

func stripe(id core.ID) uint64 {
	return uint64(id) % stripes
}

// transient reports whether a commit error may succeed on another attempt.
func transient(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrInvalidNode), errors.Is(err, core.ErrInvalidEdge):
		return false
	case errors.Is(err, storage.ErrStorageClosed):
		return false
	}
	return true
}
