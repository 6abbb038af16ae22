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


package novelty

import (
	"errors"
	"fmt"

	"github.com/poiesic/kexpand/core"
)

var (
	// ErrGraphStoreRequired is returned when a graph store is not provided.
	ErrGraphStoreRequired = errors.New("graph store required")

	// ErrInvalidTopK is returned for a top-k outside 1..MaxTopK.
	ErrInvalidTopK = fmt.Errorf("%w: top k must be between 1 and %d", core.ErrConfiguration, MaxTopK)

	// ErrInvalidThreshold is returned for a threshold outside [0,1].
	ErrInvalidThreshold = fmt.Errorf("%w: threshold must be between 0 and 1", core.ErrConfiguration)
)
