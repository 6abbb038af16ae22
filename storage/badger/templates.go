package badger

import (
	"context"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/storage"
)

// TemplateRepository implements storage.TemplateRepository for BadgerDB.
type TemplateRepository struct {
	backend *Backend
}

var _ storage.TemplateRepository = (*TemplateRepository)(nil)

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(backend *Backend) (*TemplateRepository, error) {
	if backend == nil {
		return nil, storage.ErrInvalidArgument
	}
	return &TemplateRepository{backend: backend}, nil
}

// SaveTemplate inserts or replaces a template by ID.
func (r *TemplateRepository) SaveTemplate(ctx context.Context, tmpl *core.PromptTemplate) error {
	if tmpl == nil || strings.TrimSpace(tmpl.Id) == "" {
		return storage.ErrInvalidArgument
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeTemplateKey(tmpl.Id), storage.MarshalTemplate(tmpl)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetTemplate retrieves a template by ID.
func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (*core.PromptTemplate, error) {
	var result *core.PromptTemplate
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeTemplateKey(id))
		if err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = storage.UnmarshalTemplate(val)
			return err
		})
	}, false)
	return result, err
}

// ListTemplates returns every stored template ordered by creation time.
func (r *TemplateRepository) ListTemplates(ctx context.Context) ([]*core.PromptTemplate, error) {
	results := []*core.PromptTemplate{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(templatePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				tmpl, err := storage.UnmarshalTemplate(val)
				if err != nil {
					return err
				}
				results = append(results, tmpl)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// DeleteTemplate removes a template.
func (r *TemplateRepository) DeleteTemplate(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeTemplateKey(id)
		if _, err := tx.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
