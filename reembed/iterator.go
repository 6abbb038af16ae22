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

	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/storage"
)

const (
	// DefaultBatchSize is the default number of nodes to fetch in each batch
	DefaultBatchSize = 100
)

// NodeIterator iterates over all knowledge nodes in batches.
type NodeIterator struct {
	graph     storage.GraphStore
	batchSize int
}

// NewNodeIterator creates a new node iterator.
// batchSize: number of nodes to fetch in each batch; non-positive values use the default
func NewNodeIterator(graph storage.GraphStore, batchSize int) *NodeIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &NodeIterator{
		graph:     graph,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of nodes in ID order.
// Iteration stops on the first error from fn or when ctx is cancelled.
func (it *NodeIterator) ForEach(ctx context.Context, fn func([]*core.KnowledgeNode) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return it.graph.ForEachNode(ctx, it.batchSize, fn)
}
