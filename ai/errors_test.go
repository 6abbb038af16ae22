package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/kexpand/core"
	"github.com/stretchr/testify/assert"
	"github.com/tmc/langchaingo/llms"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorKindTimeout},
		{"canceled", context.Canceled, ErrorKindCancelled},
		{"empty response", ErrEmptyResponse, ErrorKindMalformed},
		{"langchaingo rate limit", llms.NewError(llms.ErrCodeRateLimit, "openai", "slow down"), ErrorKindRateLimit},
		{"langchaingo auth", llms.NewError(llms.ErrCodeAuthentication, "openai", "bad key"), ErrorKindAuth},
		{"status text 429", errors.New("API returned unexpected status code: 429"), ErrorKindRateLimit},
		{"status text 401", errors.New("401 unauthorized"), ErrorKindAuth},
		{"unknown", errors.New("connection refused"), ErrorKindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestProviderError_Wrapping(t *testing.T) {
	cause := errors.New("429 too many requests")
	err := NewProviderError(KindOpenAI, "gpt-4o-mini", cause)

	assert.ErrorIs(t, err, core.ErrProvider)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, core.ErrorKindProvider, core.KindOf(err))

	var pe *ProviderError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrorKindRateLimit, pe.Kind)
	assert.Equal(t, "gpt-4o-mini", pe.Model)

	// Wrapping twice keeps the original classification.
	assert.Same(t, pe, NewProviderError(KindMock, "other", fmt.Errorf("outer: %w", err)))
	assert.Nil(t, NewProviderError(KindMock, "m", nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("503 service unavailable")))
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.False(t, Retryable(errors.New("invalid api key")))
	assert.False(t, Retryable(context.Canceled))
}
