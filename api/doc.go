// Package api serves the kexpand HTTP interface with fiber.
//
// Batch uploads and crawls are submitted as jobs and observed, steered and
// exported through the /batch routes. The /llm routes manage registered
// models, fallback chains, metrics and prompt templates. Prometheus metrics
// are served at /metrics.
package api
