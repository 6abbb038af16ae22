package jobs

import (
	"time"

	"github.com/poiesic/kexpand/core"
)

// Snapshot is a point-in-time copy of a job's state.
type Snapshot struct {
	JobID          string         `json:"job_id"`
	Kind           core.JobKind   `json:"job_type"`
	Status         core.JobStatus `json:"status"`
	Run            int            `json:"run"`
	Config         core.JobConfig `json:"config"`
	TotalItems     int            `json:"total_items"`
	ProcessedItems int            `json:"processed_items"`
	SucceededItems int            `json:"successful_items"`
	FailedItems    int            `json:"failed_items"`
	RunningItems   int            `json:"running_items"`
	PendingItems   int            `json:"pending_items"`
	Items          []Item         `json:"items"`
	StartedAt      time.Time      `json:"started_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
}

// Failed returns the items whose last attempt failed.
func (s *Snapshot) Failed() []Item {
	return s.filter(ItemFailed)
}

// Succeeded returns the items that produced a node.
func (s *Snapshot) Succeeded() []Item {
	return s.filter(ItemSucceeded)
}

func (s *Snapshot) filter(status ItemStatus) []Item {
	var out []Item
	for _, it := range s.Items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	return out
}

func (j *job) snapshotLocked() *Snapshot {
	s := &Snapshot{
		JobID:          j.id,
		Kind:           j.kind,
		Status:         j.status,
		Run:            j.run,
		Config:         j.config(),
		TotalItems:     int(j.progress.total.Load()),
		ProcessedItems: int(j.progress.processed.Load()),
		SucceededItems: int(j.progress.succeeded.Load()),
		FailedItems:    int(j.progress.failed.Load()),
		RunningItems:   j.running,
		PendingItems:   len(j.queue),
		Items:          make([]Item, len(j.items)),
		StartedAt:      j.startedAt,
		UpdatedAt:      j.updatedAt,
	}
	for i, it := range j.items {
		s.Items[i] = *it
	}
	if !j.endedAt.IsZero() {
		ended := j.endedAt
		s.EndedAt = &ended
	}
	return s
}

// Metrics summarizes the speed and quality of a job.
type Metrics struct {
	ProcessingSpeed        float64            `json:"processing_speed"`
	EstimatedTimeRemaining float64            `json:"estimated_time_remaining"`
	ErrorRate              float64            `json:"error_rate"`
	SuccessRate            float64            `json:"success_rate"`
	AverageProcessingTime  float64            `json:"average_processing_time"`
	StartTime              time.Time          `json:"start_time"`
	ElapsedTime            float64            `json:"elapsed_time"`
	ProcessedItems         int                `json:"processed_items"`
	TotalItems             int                `json:"total_items"`
	Throughput             []ThroughputSample `json:"processing_speed_over_time"`
}

func (j *job) metricsLocked(now time.Time) *Metrics {
	end := now
	if !j.endedAt.IsZero() {
		end = j.endedAt
	}
	elapsed := end.Sub(j.startedAt).Seconds()
	processed := j.progress.processed.Load()
	total := j.progress.total.Load()

	m := &Metrics{
		ErrorRate:      j.errorRate(),
		StartTime:      j.startedAt,
		ElapsedTime:    elapsed,
		ProcessedItems: int(processed),
		TotalItems:     int(total),
		Throughput:     append([]ThroughputSample(nil), j.samples...),
	}
	if settled := j.settled(); settled > 0 {
		m.SuccessRate = float64(j.progress.succeeded.Load()) / float64(settled)
	}
	if elapsed > 0 {
		m.ProcessingSpeed = float64(processed) / elapsed
	}
	if m.ProcessingSpeed > 0 {
		m.EstimatedTimeRemaining = float64(total-processed) / m.ProcessingSpeed
	}
	if n := j.progress.completions.Load(); n > 0 {
		m.AverageProcessingTime = time.Duration(j.progress.busy.Load() / n).Seconds()
	}
	return m
}
