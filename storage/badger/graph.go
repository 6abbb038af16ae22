package badger

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/storage"
)

// GraphRepository implements storage.GraphStore for BadgerDB.
type GraphRepository struct {
	backend *Backend
}

var _ storage.GraphStore = (*GraphRepository)(nil)

// NewGraphRepository creates a new GraphRepository.
func NewGraphRepository(backend *Backend) (*GraphRepository, error) {
	if backend == nil {
		return nil, storage.ErrInvalidArgument
	}
	return &GraphRepository{
		backend: backend,
	}, nil
}

// Close releases resources. GraphRepository has no resources to release.
func (r *GraphRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *GraphRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// UpsertNode stores node, replacing any node previously ingested from the same locator.
func (r *GraphRepository) UpsertNode(ctx context.Context, node *core.KnowledgeNode) (core.ID, error) {
	if node == nil {
		return 0, storage.ErrInvalidArgument
	}
	locator := strings.TrimSpace(node.SourceLocator)
	if locator == "" {
		return 0, core.ErrEmptyLocator
	}
	node.SourceLocator = locator
	node.Tags = core.NormalizeTags(node.Tags)

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		locKey := makeLocatorKey(locator)
		existingID, err := readID(tx, locKey)
		if err != nil {
			return err
		}

		switch {
		case existingID != 0:
			node.Id = existingID
		case node.Id == 0:
			node.Id = core.NodeIDForLocator(locator)
		}

		// Stored timestamps have microsecond resolution.
		now := time.Now().UTC().Truncate(time.Microsecond)
		node.UpdatedAt = now
		old, err := readNode(tx, makeNodeKey(node.Id))
		if err != nil {
			return err
		}
		if old != nil && !old.CreatedAt.IsZero() {
			node.CreatedAt = old.CreatedAt
		} else if node.CreatedAt.IsZero() {
			node.CreatedAt = now
		} else {
			node.CreatedAt = node.CreatedAt.Truncate(time.Microsecond)
		}

		if err := tx.Set(makeNodeKey(node.Id), storage.MarshalNode(node)); err != nil {
			return err
		}
		if err := tx.Set(locKey, storage.MarshalID(node.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return node.Id, nil
}

// GetNode retrieves a single node by ID.
func (r *GraphRepository) GetNode(ctx context.Context, id core.ID) (*core.KnowledgeNode, error) {
	var result *core.KnowledgeNode
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readNode(tx, makeNodeKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetNodes retrieves multiple nodes by their IDs.
func (r *GraphRepository) GetNodes(ctx context.Context, ids ...core.ID) ([]*core.KnowledgeNode, error) {
	var result []*core.KnowledgeNode
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			node, err := readNode(tx, makeNodeKey(id))
			if err != nil {
				return err
			}
			if node != nil {
				result = append(result, node)
			}
		}
		return nil
	}, false)
	return result, err
}

// FindNodeByLocator looks a node up through the locator index.
func (r *GraphRepository) FindNodeByLocator(ctx context.Context, locator string) (*core.KnowledgeNode, error) {
	var result *core.KnowledgeNode
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		id, err := readID(tx, makeLocatorKey(strings.TrimSpace(locator)))
		if err != nil {
			return err
		}
		if id == 0 {
			return storage.ErrNotFound
		}
		result, err = readNode(tx, makeNodeKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// UpsertEdge writes the edge between a and b along with both adjacency entries.
func (r *GraphRepository) UpsertEdge(ctx context.Context, a, b core.ID, weight float64) (*core.KnowledgeEdge, error) {
	edge := core.KnowledgeEdge{Source: a, Target: b, Weight: weight}.Canonical()
	if err := core.ValidateEdge(&edge); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range []core.ID{edge.Source, edge.Target} {
			_, err := tx.Get(makeNodeKey(id))
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			if err != nil {
				return err
			}
		}

		edge.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		if err := tx.Set(makeEdgeKey(edge.Source, edge.Target), storage.MarshalEdge(&edge)); err != nil {
			return err
		}
		if err := tx.Set(makeAdjacencyKey(edge.Source, edge.Target), nil); err != nil {
			return err
		}
		if err := tx.Set(makeAdjacencyKey(edge.Target, edge.Source), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// GetEdge retrieves the edge between a and b in either direction.
func (r *GraphRepository) GetEdge(ctx context.Context, a, b core.ID) (*core.KnowledgeEdge, error) {
	var result *core.KnowledgeEdge
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readEdge(tx, makeEdgeKey(a, b))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetEdges retrieves every edge touching id, ordered by neighbor ID.
func (r *GraphRepository) GetEdges(ctx context.Context, id core.ID) ([]*core.KnowledgeEdge, error) {
	var results []*core.KnowledgeEdge
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePartialAdjacencyKey(id)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		var neighbors []core.ID
		for iter.Rewind(); iter.Valid(); iter.Next() {
			neighbors = append(neighbors, neighborFromAdjacencyKey(iter.Item().Key()))
		}

		for _, other := range neighbors {
			edge, err := readEdge(tx, makeEdgeKey(id, other))
			if err != nil {
				return err
			}
			if edge != nil {
				results = append(results, edge)
			}
		}
		return nil
	}, false)
	return results, err
}

// Similar scans every node and scores it against query with storage.Score.
// Nodes scoring zero are omitted.
func (r *GraphRepository) Similar(ctx context.Context, query core.SimilarityQuery, k int) ([]core.SimilarNode, error) {
	if k <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	query.Tags = core.NormalizeTags(query.Tags)

	var results []core.SimilarNode
	err := r.scanNodes(ctx, func(node *core.KnowledgeNode) error {
		if node.Id == query.ExcludeID {
			return nil
		}
		score := storage.Score(query, node)
		if score <= 0 {
			return nil
		}
		results = append(results, core.SimilarNode{Node: node, Score: score})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Node.Id < results[j].Node.Id
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// CountNodes returns the number of stored nodes.
func (r *GraphRepository) CountNodes(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(nodePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// ForEachNode calls fn with batches of up to batchSize nodes in ID order.
func (r *GraphRepository) ForEachNode(ctx context.Context, batchSize int, fn func([]*core.KnowledgeNode) error) error {
	if batchSize <= 0 {
		return storage.ErrInvalidArgument
	}
	batch := make([]*core.KnowledgeNode, 0, batchSize)
	err := r.scanNodes(ctx, func(node *core.KnowledgeNode) error {
		batch = append(batch, node)
		if len(batch) < batchSize {
			return nil
		}
		err := fn(batch)
		batch = make([]*core.KnowledgeNode, 0, batchSize)
		return err
	})
	if err != nil {
		return err
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// scanNodes visits every node in key order inside one read transaction.
func (r *GraphRepository) scanNodes(ctx context.Context, visit func(*core.KnowledgeNode) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = []byte(nodePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var node *core.KnowledgeNode
			err := iter.Item().Value(func(val []byte) error {
				var err error
				node, err = storage.UnmarshalNode(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := visit(node); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// readNode reads a node from a transaction. Returns nil if the key is absent.
func readNode(tx *badger.Txn, key []byte) (*core.KnowledgeNode, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var node *core.KnowledgeNode
	err = item.Value(func(val []byte) error {
		node, err = storage.UnmarshalNode(val)
		return err
	})
	return node, err
}

// readEdge reads an edge from a transaction. Returns nil if the key is absent.
func readEdge(tx *badger.Txn, key []byte) (*core.KnowledgeEdge, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var edge *core.KnowledgeEdge
	err = item.Value(func(val []byte) error {
		edge, err = storage.UnmarshalEdge(val)
		return err
	})
	return edge, err
}

// readID reads an index entry. Returns 0 if the key is absent.
func readID(tx *badger.Txn, key []byte) (core.ID, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var id core.ID
	err = item.Value(func(val []byte) error {
		id, err = storage.UnmarshalID(val)
		return err
	})
	return id, err
}
