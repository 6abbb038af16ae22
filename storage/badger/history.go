package badger

import (
	"context"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/storage"
)

// HistoryRepository implements storage.HistoryRepository for BadgerDB.
type HistoryRepository struct {
	backend *Backend
}

var _ storage.HistoryRepository = (*HistoryRepository)(nil)

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(backend *Backend) (*HistoryRepository, error) {
	if backend == nil {
		return nil, storage.ErrInvalidArgument
	}
	return &HistoryRepository{backend: backend}, nil
}

// AppendHistory stores entry under (JobId, Run). Entries are never overwritten.
func (r *HistoryRepository) AppendHistory(ctx context.Context, entry *core.JobHistoryEntry) error {
	if entry == nil || strings.TrimSpace(entry.JobId) == "" || entry.Run <= 0 {
		return storage.ErrInvalidArgument
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeHistoryKey(entry.JobId, entry.Run)
		_, err := tx.Get(key)
		if err == nil {
			return storage.ErrDuplicateKey
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		if err := tx.Set(key, storage.MarshalHistoryEntry(entry)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetHistory returns every recorded run of jobID ordered by run.
func (r *HistoryRepository) GetHistory(ctx context.Context, jobID string) ([]*core.JobHistoryEntry, error) {
	var results []*core.JobHistoryEntry
	err := r.scan(makePartialHistoryKey(jobID), func(entry *core.JobHistoryEntry) {
		results = append(results, entry)
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, storage.ErrNotFound
	}
	return results, nil
}

// ListHistory returns matching entries newest first with the total match count.
func (r *HistoryRepository) ListHistory(ctx context.Context, query storage.HistoryQuery) ([]*core.JobHistoryEntry, int, error) {
	if query.Limit < 0 || query.Offset < 0 {
		return nil, 0, storage.ErrInvalidQuery
	}

	var matches []*core.JobHistoryEntry
	err := r.scan([]byte(historyPrefix), func(entry *core.JobHistoryEntry) {
		if query.Kind != "" && entry.Kind != query.Kind {
			return
		}
		if entry.SuccessRate() < query.MinSuccessRate {
			return
		}
		matches = append(matches, entry)
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].EndedAt.Equal(matches[j].EndedAt) {
			return matches[i].EndedAt.After(matches[j].EndedAt)
		}
		return matches[i].StartedAt.After(matches[j].StartedAt)
	})

	total := len(matches)
	if query.Offset >= total {
		return []*core.JobHistoryEntry{}, total, nil
	}
	matches = matches[query.Offset:]
	if query.Limit > 0 && len(matches) > query.Limit {
		matches = matches[:query.Limit]
	}
	return matches, total, nil
}

func (r *HistoryRepository) scan(prefix []byte, visit func(*core.JobHistoryEntry)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var entry *core.JobHistoryEntry
			err := iter.Item().Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalHistoryEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			visit(entry)
		}
		return nil
	}, false)
}
