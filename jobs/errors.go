package jobs

import (
	"errors"
	"fmt"

	"github.com/poiesic/kexpand/core"
)

var (
	// ErrProcessorRequired is returned when a processor is not provided.
	ErrProcessorRequired = errors.New("processor required")

	// ErrHistoryRequired is returned when a history repository is not provided.
	ErrHistoryRequired = errors.New("history repository required")

	// ErrJobNotFound is returned when no job has the given ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrItemNotFound is returned when a job has no item with the given ID.
	ErrItemNotFound = errors.New("item not found")

	// ErrNoItems is returned when a submission carries no items.
	ErrNoItems = fmt.Errorf("%w: job has no items", core.ErrConfiguration)

	// ErrInvalidAction is returned for a control action other than pause, resume or cancel.
	ErrInvalidAction = fmt.Errorf("%w: invalid job action", core.ErrConfiguration)

	// ErrUnsupportedFormat is returned when an export format is not json or csv.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported export format", core.ErrConfiguration)

	// ErrControllerClosed is returned by operations on a closed controller.
	ErrControllerClosed = errors.New("controller closed")
)
