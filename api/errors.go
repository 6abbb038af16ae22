package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/jobs"
	"github.com/poiesic/kexpand/llm"
	"github.com/poiesic/kexpand/storage"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

var notFound = []error{
	jobs.ErrJobNotFound,
	jobs.ErrItemNotFound,
	llm.ErrModelNotFound,
	llm.ErrFallbackNotFound,
	llm.ErrTemplateNotFound,
	storage.ErrNotFound,
}

// statusFor maps err onto an HTTP status code.
func statusFor(err error) int {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return fiber.StatusNotFound
		}
	}
	var fe *fiber.Error
	switch {
	case errors.Is(err, core.ErrJobState):
		return fiber.StatusConflict
	case errors.Is(err, core.ErrConfiguration):
		return fiber.StatusBadRequest
	case errors.As(err, &fe):
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "err", err)
	}
	return c.Status(status).JSON(errorResponse{Error: err.Error()})
}

// badRequest wraps a request decoding failure as a configuration error.
func badRequest(err error) error {
	return fmt.Errorf("%w: invalid request: %w", core.ErrConfiguration, err)
}
