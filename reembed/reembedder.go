// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.




package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of nodes embedded per request
	BatchSize int

	// Workers is the number of batches embedded concurrently
	Workers int

	// ReportInterval is how often to report progress (number of nodes)
	ReportInterval int

	// MaxAttempts is the maximum number of embedding attempts per batch
	MaxAttempts int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Progress receives progress reports; nil disables them
	Progress ProgressFunc
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		Workers:        4,
		ReportInterval: 100,
		MaxAttempts:    3,
		RetryDelay:     1 * time.Second,
	}
}

// Stats summarizes a reembedding run.
type Stats struct {
	Total         int           `json:"total"`
	Processed     int           `json:"processed"`
	Failed        int           `json:"failed"`
	Batches       int           `json:"batches"`
	FailedBatches int           `json:"failed_batches"`
	Duration      time.Duration `json:"duration"`
}

// Reembedder orchestrates the reembedding of all nodes in a graph.
type Reembedder struct {
	graph     storage.GraphStore
	config    *Config
	logger    *slog.Logger
	processor *BatchProcessor
	iterator  *NodeIterator
}

// NewReembedder creates a new reembedder. A nil config uses DefaultConfig.
func NewReembedder(graph storage.GraphStore, embedder ai.Embedder, config *Config, logger *slog.Logger) (*Reembedder, error) {
	if graph == nil {
		return nil, ErrGraphRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reembedder{
		graph:     graph,
		config:    &cfg,
		logger:    logger.With("component", "reembed"),
		processor: NewBatchProcessor(graph, embedder, cfg.MaxAttempts, cfg.RetryDelay),
		iterator:  NewNodeIterator(graph, cfg.BatchSize),
	}, nil
}

// Run re-embeds every node in the graph. Failed batches are counted and
// logged; an error is returned only when ctx is cancelled or every batch
// failed. The returned stats are valid in both cases.
func (r *Reembedder) Run(ctx context.Context) (*Stats, error) {
	total, err := r.graph.CountNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count nodes: %w", err)
	}
	stats := &Stats{Total: total}
	if total == 0 {
		r.logger.Info("no nodes to reembed")
		return stats, nil
	}

	r.logger.Info("starting reembedding", "nodes", total, "batch_size", r.config.BatchSize, "workers", r.config.Workers)

	tracker := NewProgressTracker(r.config.Progress, total, r.config.ReportInterval)
	tracker.Start()

	pool, err := ants.NewPool(r.config.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	finish := func(batch []*core.KnowledgeNode, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			stats.FailedBatches++
			tracker.Add(0, len(batch))
			r.logger.Warn("batch failed", "first_node", batch[0].Id, "nodes", len(batch), "err", err)
			return
		}
		tracker.Add(len(batch), 0)
	}

	iterErr := r.iterator.ForEach(ctx, func(batch []*core.KnowledgeNode) error {
		mu.Lock()
		stats.Batches++
		mu.Unlock()

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			finish(batch, r.processor.Process(ctx, batch))
		})
		if err != nil {
			wg.Done()
			finish(batch, err)
		}
		return nil
	})
	wg.Wait()

	final := tracker.Finish()
	stats.Processed = final.Processed
	stats.Failed = final.Failed
	stats.Duration = final.Elapsed

	r.logger.Info("reembedding finished",
		"processed", stats.Processed, "failed", stats.Failed,
		"batches", stats.Batches, "failed_batches", stats.FailedBatches,
		"duration", stats.Duration.Round(time.Millisecond))

	switch {
	case iterErr != nil:
		return stats, fmt.Errorf("failed to iterate nodes: %w", iterErr)
	case ctx.Err() != nil:
		return stats, ctx.Err()
	case stats.Batches > 0 && stats.FailedBatches == stats.Batches:
		return stats, fmt.Errorf("%w: %w", ErrAllBatchesFailed, core.ErrProvider)
	}
	return stats, nil
}
