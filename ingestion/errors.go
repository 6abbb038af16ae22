package ingestion

import (
	"errors"
	"fmt"

	"github.com/poiesic/kexpand/core"
)

var (
	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrRouterRequired is returned when a model router is not provided.
	ErrRouterRequired = errors.New("router required")

	// ErrClassifierRequired is returned when a novelty classifier is not provided.
	ErrClassifierRequired = errors.New("classifier required")

	// ErrLinkerRequired is returned when a graph linker is not provided.
	ErrLinkerRequired = errors.New("linker required")

	// ErrMalformedSummary is returned when no attempt produced a parseable summary.
	ErrMalformedSummary = fmt.Errorf("%w: malformed summary", core.ErrProvider)
)
