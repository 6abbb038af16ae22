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


package ingestion

// StageObserver receives the stage transitions of items passing through a
// Pipeline. Calls for one item arrive in order from the goroutine running
// Process; calls for different items may be concurrent.
type StageObserver interface {
	OnStage(item Item, stage Stage)
}

// StageObserverFunc adapts a function to StageObserver.
type StageObserverFunc func(item Item, stage Stage)

func (f StageObserverFunc) OnStage(item Item, stage Stage) {
	f(item, stage)
}

// noopObserver is a no-op implementation of StageObserver
type noopObserver struct{}

var _ StageObserver = (*noopObserver)(nil)

func (n *noopObserver) OnStage(_ Item, _ Stage) {}
