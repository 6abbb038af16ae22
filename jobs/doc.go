// Package jobs runs batches of ingestion items under pause, resume, cancel
// and retry control.
//
// A Controller owns every job. Each job has one dispatch goroutine that
// walks its queue in submission order and hands items to an ants pool
// sized at the job's concurrency limit. Items complete in any order; their
// outcomes update atomic counters and an append-only outcome list.
//
// After each completion the job's cumulative error rate (failed/processed)
// is compared with the configured threshold, and a job with auto-pause on
// stops dispatching when the rate is exceeded. Items already in flight
// always finish and are recorded.
//
// When a job reaches a terminal state with nothing in flight, an immutable
// core.JobHistoryEntry is appended to the history repository. Retrying
// items of a completed job reopens it; the next terminal state appends a
// new entry under the next run number.
package jobs
