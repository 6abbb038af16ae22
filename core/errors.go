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


package core

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Callers match with errors.Is.
var (
	// ErrExtraction indicates an unsupported or corrupt source. Terminal per item.
	ErrExtraction = errors.New("extraction error")

	// ErrProvider indicates a language model call failed after the fallback chain was exhausted.
	ErrProvider = errors.New("provider error")

	// ErrGraphWrite indicates the graph store rejected or could not apply a write.
	ErrGraphWrite = errors.New("graph write error")

	// ErrConfiguration indicates invalid configuration rejected before any job runs.
	ErrConfiguration = errors.New("configuration error")

	// ErrJobState indicates an illegal job state transition.
	ErrJobState = errors.New("job state error")
)

// Domain validation errors
var (
	// ErrInvalidNode indicates a KnowledgeNode failed validation.
	ErrInvalidNode = errors.New("invalid knowledge node")

	// ErrEmptyLocator indicates the SourceLocator field is empty.
	ErrEmptyLocator = errors.New("source locator cannot be empty")

	// ErrInvalidSourceType indicates an unknown SourceType value.
	ErrInvalidSourceType = errors.New("invalid source type")

	// ErrInvalidConfidence indicates a confidence score outside [0,1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")

	// ErrInvalidEdge indicates a KnowledgeEdge failed validation.
	ErrInvalidEdge = errors.New("invalid knowledge edge")

	// ErrSelfEdge indicates an edge from a node to itself.
	ErrSelfEdge = errors.New("edge endpoints must differ")

	// ErrInvalidWeight indicates an edge weight outside (0,1].
	ErrInvalidWeight = errors.New("edge weight must be in (0,1]")

	// ErrInvalidFallbackConfig indicates a FallbackConfig failed validation.
	ErrInvalidFallbackConfig = fmt.Errorf("%w: invalid fallback config", ErrConfiguration)

	// ErrPrimaryInFallbacks indicates the primary model is listed among its own fallbacks.
	ErrPrimaryInFallbacks = errors.New("primary model must not appear in fallback list")

	// ErrDuplicateFallback indicates a fallback model listed more than once.
	ErrDuplicateFallback = errors.New("duplicate fallback model")

	// ErrUnknownModel indicates a reference to a model that is not registered.
	ErrUnknownModel = errors.New("unknown model")

	// ErrInvalidTemplate indicates a PromptTemplate failed validation.
	ErrInvalidTemplate = fmt.Errorf("%w: invalid prompt template", ErrConfiguration)

	// ErrVariableMismatch indicates declared variables differ from the template's placeholders.
	ErrVariableMismatch = errors.New("declared variables do not match placeholders")

	// ErrMissingVariable indicates a render call without a value for a declared variable.
	ErrMissingVariable = errors.New("missing template variable")

	// ErrInvalidJobConfig indicates a JobConfig failed validation.
	ErrInvalidJobConfig = fmt.Errorf("%w: invalid job config", ErrConfiguration)
)

// ErrorKind is the coarse category of an item failure, used for analytics.
type ErrorKind string

const (
	ErrorKindExtraction    ErrorKind = "extraction"
	ErrorKindProvider      ErrorKind = "provider"
	ErrorKindGraphWrite    ErrorKind = "graph_write"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindCancelled     ErrorKind = "cancelled"
	ErrorKindInternal      ErrorKind = "internal"
)

// KindOf maps err onto the error taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExtraction):
		return ErrorKindExtraction
	case errors.Is(err, ErrProvider):
		return ErrorKindProvider
	case errors.Is(err, ErrGraphWrite):
		return ErrorKindGraphWrite
	case errors.Is(err, ErrConfiguration):
		return ErrorKindConfiguration
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	default:
		return ErrorKindInternal
	}
}
