package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/kexpand/core"
	"github.com/tmc/langchaingo/llms"
)

var (
	// ErrEmptyResponse is returned when a backend answers with no choices.
	ErrEmptyResponse = errors.New("provider returned no choices")

	// ErrUnknownKind is returned for provider kinds without a constructor.
	ErrUnknownKind = fmt.Errorf("%w: unknown provider kind", core.ErrConfiguration)

	// ErrNoEmbeddings is returned when a provider kind cannot embed text.
	ErrNoEmbeddings = fmt.Errorf("%w: provider kind has no embedder", core.ErrConfiguration)
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindRateLimit   ErrorKind = "rate_limit"
	ErrorKindAuth        ErrorKind = "auth"
	ErrorKindMalformed   ErrorKind = "malformed"
	ErrorKindUnavailable ErrorKind = "unavailable"
	ErrorKindCancelled   ErrorKind = "cancelled"
)

// ProviderError is a classified failure of one model call.
// It matches core.ErrProvider with errors.Is.
type ProviderError struct {
	Provider ProviderKind
	Model    string
	Kind     ErrorKind
	Err      error
}

// NewProviderError classifies err and wraps it. A nil err returns nil.
func NewProviderError(kind ProviderKind, model string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: kind, Model: model, Kind: ClassifyError(err), Err: err}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s/%s: %s: %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{core.ErrProvider, e.Err}
}

// ClassifyError maps an error returned by a backend to an ErrorKind.
// Errors not already standardized by langchaingo are run through its generic
// error mapper first.
func ClassifyError(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrEmptyResponse) {
		return ErrorKindMalformed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindCancelled
	}

	var le *llms.Error
	if !errors.As(err, &le) {
		if !errors.As(llms.NewErrorMapper("kexpand").Map(err), &le) {
			return ErrorKindUnavailable
		}
	}
	switch le.Code {
	case llms.ErrCodeTimeout:
		return ErrorKindTimeout
	case llms.ErrCodeCanceled:
		return ErrorKindCancelled
	case llms.ErrCodeRateLimit, llms.ErrCodeQuotaExceeded:
		return ErrorKindRateLimit
	case llms.ErrCodeAuthentication:
		return ErrorKindAuth
	case llms.ErrCodeInvalidRequest, llms.ErrCodeTokenLimit, llms.ErrCodeContentFilter:
		return ErrorKindMalformed
	default:
		return ErrorKindUnavailable
	}
}

// Retryable reports whether another attempt against the same model may succeed.
// Authentication failures and cancellations are not retried.
func Retryable(err error) bool {
	switch ClassifyError(err) {
	case ErrorKindAuth, ErrorKindCancelled:
		return false
	default:
		return true
	}
}
