package llm

import (
	"errors"
	"fmt"

	"github.com/poiesic/kexpand/core"
)

var (
	// ErrChainExhausted is returned when every model in a chain failed.
	ErrChainExhausted = fmt.Errorf("%w: fallback chain exhausted", core.ErrProvider)

	// ErrModelNotFound is returned for lookups of unregistered models.
	ErrModelNotFound = fmt.Errorf("%w: not registered", core.ErrUnknownModel)

	// ErrFallbackNotFound is returned when no fallback chain is configured for a model.
	ErrFallbackNotFound = errors.New("fallback config not found")

	// ErrTemplateNotFound is returned for unknown template ids.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrNoModel is returned when an invocation names no model and no default is set.
	ErrNoModel = fmt.Errorf("%w: no model to invoke", core.ErrConfiguration)

	// ErrEmptyInvocation is returned when an invocation has neither template nor prompt.
	ErrEmptyInvocation = fmt.Errorf("%w: invocation needs a template id or a prompt", core.ErrConfiguration)
)
