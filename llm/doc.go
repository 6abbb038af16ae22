// Package llm routes prompt invocations across registered models.
//
// A Registry holds the process-wide set of models, their fallback chains,
// per-model metrics and health windows. The Router resolves an Invocation to
// a chain of models, retries each with bounded backoff under a per-attempt
// timeout, and cascades down the chain. Models whose recent error rate
// crosses their trigger are marked degraded for a cool-down and skipped by
// later calls. Templates stores validated prompt templates and renders them.
package llm
