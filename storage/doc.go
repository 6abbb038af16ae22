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


// Package storage provides the storage abstraction layer for kexpand.
//
// This package defines repository interfaces that decouple the knowledge graph
// and job history from the storage engine. The BadgerDB implementation lives in
// storage/badger; other engines can satisfy the same interfaces.
//
// # Architecture
//
//   - GraphStore: nodes, the locator index, weighted edges and similarity queries
//   - HistoryRepository: immutable snapshots of terminated batch jobs
//   - TemplateRepository: persisted prompt templates
//
// Similarity scoring (Score, Cosine, Jaccard) is defined here so every engine
// ranks nodes identically.
//
// # Usage
//
//	store, err := badger.NewMemoryStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
