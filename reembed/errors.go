package reembed

import "errors"

var (
	// ErrGraphRequired is returned when no graph store is given.
	ErrGraphRequired = errors.New("graph store is required")

	// ErrEmbedderRequired is returned when no embedder is given.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrAllBatchesFailed is returned when no batch could be re-embedded.
	ErrAllBatchesFailed = errors.New("every batch failed")
)
