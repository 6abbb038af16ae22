package jobs

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/ingestion"
)

// topErrorTypes is how many error types Analytics reports.
const topErrorTypes = 10

// AnalyticsFilter selects the terminated jobs Analytics aggregates.
type AnalyticsFilter struct {
	Kind  core.JobKind // empty matches every kind
	Since time.Time    // zero matches every job
}

// ErrorCount is how often one error type occurred.
type ErrorCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// SpeedPoint is the average processing speed of one job run.
type SpeedPoint struct {
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Speed     float64   `json:"speed"`
}

// Analytics aggregates terminated job runs.
type Analytics struct {
	Jobs                    int                    `json:"jobs"`
	TotalProcessed          int                    `json:"total_processed"`
	SuccessRate             float64                `json:"success_rate"`
	AverageProcessingTime   float64                `json:"average_processing_time"`
	ErrorDistribution       map[core.ErrorKind]int `json:"error_distribution"`
	ProcessingSpeedOverTime []SpeedPoint           `json:"processing_speed_over_time"`
	CommonErrorTypes        []ErrorCount           `json:"common_error_types"`
}

// analyticsSample is the contribution of one terminated run.
type analyticsSample struct {
	jobID       string
	kind        core.JobKind
	endedAt     time.Time
	processed   int
	succeeded   int
	completions int64
	busy        time.Duration
	speed       float64
	errorKinds  map[core.ErrorKind]int
	errorTypes  map[string]int
}

// errorType names a failure by its kind and the stage it happened at.
func errorType(kind core.ErrorKind, stage ingestion.Stage) string {
	return fmt.Sprintf("%s at %s", kind, stage)
}

// analyticsSampleLocked summarizes the attempts of the current run only, so
// a reopened job does not count its earlier runs again.
func (j *job) analyticsSampleLocked() analyticsSample {
	s := analyticsSample{
		jobID:      j.id,
		kind:       j.kind,
		endedAt:    j.endedAt,
		errorKinds: make(map[core.ErrorKind]int),
		errorTypes: make(map[string]int),
	}
	for _, o := range j.outcomes[j.runOutcomes:] {
		s.processed++
		s.completions++
		s.busy += o.Duration
		if o.Succeeded {
			s.succeeded++
			continue
		}
		s.errorKinds[o.ErrorKind]++
		s.errorTypes[errorType(o.ErrorKind, cmp.Or(o.FailedAt, o.Stage))]++
	}
	if elapsed := j.endedAt.Sub(j.runStartedAt).Seconds(); elapsed > 0 {
		s.speed = float64(s.processed) / elapsed
	}
	return s
}

func (c *Controller) addSample(s analyticsSample) {
	c.amu.Lock()
	defer c.amu.Unlock()
	c.samples = append(c.samples, s)
}

// Analytics aggregates the terminated runs matching filter. Rates and times
// are weighted by item count.
func (c *Controller) Analytics(filter AnalyticsFilter) *Analytics {
	c.amu.Lock()
	samples := slices.Clone(c.samples)
	c.amu.Unlock()

	a := &Analytics{
		ErrorDistribution:       make(map[core.ErrorKind]int),
		ProcessingSpeedOverTime: []SpeedPoint{},
		CommonErrorTypes:        []ErrorCount{},
	}
	types := make(map[string]int)
	var succeeded int
	var completions int64
	var busy time.Duration
	for _, s := range samples {
		if filter.Kind != "" && s.kind != filter.Kind {
			continue
		}
		if !filter.Since.IsZero() && s.endedAt.Before(filter.Since) {
			continue
		}
		a.Jobs++
		a.TotalProcessed += s.processed
		succeeded += s.succeeded
		completions += s.completions
		busy += s.busy
		for k, n := range s.errorKinds {
			a.ErrorDistribution[k] += n
		}
		for t, n := range s.errorTypes {
			types[t] += n
		}
		a.ProcessingSpeedOverTime = append(a.ProcessingSpeedOverTime, SpeedPoint{
			JobID:     s.jobID,
			Timestamp: s.endedAt,
			Speed:     s.speed,
		})
	}
	if a.TotalProcessed > 0 {
		a.SuccessRate = float64(succeeded) / float64(a.TotalProcessed)
	}
	if completions > 0 {
		a.AverageProcessingTime = (busy / time.Duration(completions)).Seconds()
	}

	for _, t := range slices.Sorted(maps.Keys(types)) {
		a.CommonErrorTypes = append(a.CommonErrorTypes, ErrorCount{Type: t, Count: types[t]})
	}
	slices.SortStableFunc(a.CommonErrorTypes, func(x, y ErrorCount) int {
		return cmp.Compare(y.Count, x.Count)
	})
	if len(a.CommonErrorTypes) > topErrorTypes {
		a.CommonErrorTypes = a.CommonErrorTypes[:topErrorTypes]
	}
	slices.SortFunc(a.ProcessingSpeedOverTime, func(x, y SpeedPoint) int {
		return x.Timestamp.Compare(y.Timestamp)
	})
	return a
}
