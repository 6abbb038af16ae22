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


package badger

import "log/slog"

// Store bundles the BadgerDB repositories sharing one backend.
type Store struct {
	Backend   *Backend
	Graph     *GraphRepository
	History   *HistoryRepository
	Templates *TemplateRepository
}

// Open opens (or creates) a store at path.
func Open(path string, inMemory bool, logger *slog.Logger) (*Store, error) {
	backend, err := OpenBackendWithLogger(path, inMemory, logger)
	if err != nil {
		return nil, err
	}
	return newStore(backend)
}

// NewMemoryStore creates an in-memory store for testing.
// Caller must Close the store when done.
func NewMemoryStore() (*Store, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return newStore(backend)
}

func newStore(backend *Backend) (*Store, error) {
	graph, err := NewGraphRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	history, err := NewHistoryRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	templates, err := NewTemplateRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return &Store{
		Backend:   backend,
		Graph:     graph,
		History:   history,
		Templates: templates,
	}, nil
}

// Close closes the shared backend.
func (s *Store) Close() error {
	return s.Backend.Close()
}
