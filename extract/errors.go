package extract

import (
	"fmt"

	"github.com/poiesic/kexpand/core"
)

var (
	// ErrUnsupportedSource is returned for source types without an extractor
	// (audio and video) and for unsupported content types.
	ErrUnsupportedSource = fmt.Errorf("%w: unsupported source", core.ErrExtraction)

	// ErrEmptyContent is returned when a source yields no text.
	ErrEmptyContent = fmt.Errorf("%w: no text extracted", core.ErrExtraction)

	// ErrTooLarge is returned when a source exceeds the size cap.
	ErrTooLarge = fmt.Errorf("%w: source exceeds size limit", core.ErrExtraction)

	// ErrFetch is returned when a remote source cannot be retrieved.
	ErrFetch = fmt.Errorf("%w: fetch failed", core.ErrExtraction)
)
