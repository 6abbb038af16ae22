package crawl

import (
	"errors"
	"fmt"

	"github.com/poiesic/kexpand/core"
)

var (
	// ErrControllerRequired is returned when a job controller is not provided.
	ErrControllerRequired = errors.New("job controller required")

	// ErrNoSeeds is returned when a crawl is started without seed URLs.
	ErrNoSeeds = fmt.Errorf("%w: crawl needs at least one seed URL", core.ErrConfiguration)

	// ErrInvalidSeed is returned for a seed that is not an absolute http(s) URL.
	ErrInvalidSeed = fmt.Errorf("%w: invalid seed URL", core.ErrConfiguration)

	// ErrInvalidDepth is returned for a negative max depth.
	ErrInvalidDepth = fmt.Errorf("%w: max depth must not be negative", core.ErrConfiguration)

	// ErrDisallowed is returned when robots.txt forbids fetching a URL.
	ErrDisallowed = fmt.Errorf("%w: disallowed by robots.txt", core.ErrExtraction)
)
