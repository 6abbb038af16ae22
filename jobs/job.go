package jobs

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/ingestion"
)

// ItemStatus is the dispatch state of one item.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemRunning   ItemStatus = "running"
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
)

// Item is one unit of work in a job together with its latest result.
type Item struct {
	ID         string          `json:"id"`
	Locator    string          `json:"locator"`
	SourceType core.SourceType `json:"source_type"`
	Depth      int             `json:"depth"`
	Status     ItemStatus      `json:"status"`
	Stage      ingestion.Stage `json:"stage"`
	Attempts   int             `json:"attempts"`
	NodeID     core.ID         `json:"node_id,omitempty"`
	Title      string          `json:"title,omitempty"`
	IsNew      bool            `json:"is_new_information"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  core.ErrorKind  `json:"error_kind,omitempty"`
}

func (it *Item) pipelineItem() ingestion.Item {
	return ingestion.Item{
		ID:         it.ID,
		Locator:    it.Locator,
		SourceType: it.SourceType,
		Depth:      it.Depth,
	}
}

// ItemOutcome records one completed processing attempt. Outcomes are
// appended and never modified.
type ItemOutcome struct {
	ItemID    string          `json:"item_id"`
	Attempt   int             `json:"attempt"`
	Succeeded bool            `json:"succeeded"`
	Stage     ingestion.Stage `json:"stage"`
	FailedAt  ingestion.Stage `json:"failed_at,omitempty"`
	NodeID    core.ID         `json:"node_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind core.ErrorKind  `json:"error_kind,omitempty"`
	Duration  time.Duration   `json:"duration"`
	Usage     core.TokenUsage `json:"token_usage"`
	At        time.Time       `json:"at"`
}

// progress holds the counters read without the job lock. total and
// processed count attempts and never decrease; succeeded and failed count
// items by their current status.
type progress struct {
	total       atomic.Int64
	processed   atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	completions atomic.Int64
	busy        atomic.Int64 // summed item processing time in nanoseconds
}

// ThroughputSample is the processing speed observed at one completion.
type ThroughputSample struct {
	Elapsed   float64 `json:"elapsed"`
	Speed     float64 `json:"speed"`
	Processed int     `json:"processed"`
}

const maxSamples = 500

// Expander is called with every successful outcome before it is recorded.
// Items it enqueues through Controller.Enqueue are therefore counted
// before the parent completes.
type Expander func(jobID string, item ingestion.Item, out *ingestion.Outcome)

type job struct {
	id       string
	kind     core.JobKind
	cfg      atomic.Pointer[core.JobConfig]
	progress progress
	pool     *ants.Pool
	expander Expander

	mu          sync.Mutex
	status      core.JobStatus
	run         int
	items       []*Item
	index       map[string]*Item
	queue       []*Item
	outcomes    []ItemOutcome
	samples     []ThroughputSample
	running     int
	dispatching bool
	finalized   bool
	startedAt   time.Time
	updatedAt   time.Time
	endedAt     time.Time
	changed     chan struct{}

	// start of the current run
	runStartedAt time.Time
	runOutcomes  int
}

func newJob(id string, kind core.JobKind, cfg core.JobConfig, pool *ants.Pool, expander Expander) *job {
	now := time.Now()
	j := &job{
		id:        id,
		kind:      kind,
		pool:      pool,
		expander:  expander,
		status:    core.JobStatusRunning,
		run:       1,
		index:     make(map[string]*Item),
		startedAt: now,
		updatedAt: now,
		changed:   make(chan struct{}),

		runStartedAt: now,
	}
	j.cfg.Store(&cfg)
	return j
}

func (j *job) config() core.JobConfig {
	return *j.cfg.Load()
}

// notifyLocked wakes everything waiting on a state change.
func (j *job) notifyLocked() {
	close(j.changed)
	j.changed = make(chan struct{})
}

// addLocked appends items to the job and its queue.
func (j *job) addLocked(items []*Item) {
	for _, it := range items {
		j.items = append(j.items, it)
		j.index[it.ID] = it
		j.queue = append(j.queue, it)
	}
	j.progress.total.Add(int64(len(items)))
	j.updatedAt = time.Now()
}

// settledLocked reports whether nothing can happen without user action.
func (j *job) settledLocked() bool {
	if j.running > 0 {
		return false
	}
	switch j.status {
	case core.JobStatusPaused:
		return true
	case core.JobStatusCancelled, core.JobStatusCompleted:
		return j.finalized
	}
	return false
}

// settled is the number of items whose last attempt finished.
func (j *job) settled() int64 {
	return j.progress.succeeded.Load() + j.progress.failed.Load()
}

// errorRate is the share of settled items that failed. Retried items leave
// the rate until their new attempt finishes.
func (j *job) errorRate() float64 {
	settled := j.settled()
	if settled == 0 {
		return 0
	}
	return float64(j.progress.failed.Load()) / float64(settled)
}

// sampleLocked records the throughput at the current completion.
func (j *job) sampleLocked(now time.Time) {
	elapsed := now.Sub(j.startedAt).Seconds()
	processed := j.progress.processed.Load()
	s := ThroughputSample{Elapsed: elapsed, Processed: int(processed)}
	if elapsed > 0 {
		s.Speed = float64(processed) / elapsed
	}
	if len(j.samples) == maxSamples {
		j.samples = append(j.samples[:0], j.samples[1:]...)
	}
	j.samples = append(j.samples, s)
}

// historyLocked builds the history entry of the current run.
func (j *job) historyLocked() *core.JobHistoryEntry {
	return &core.JobHistoryEntry{
		JobId:           j.id,
		Run:             j.run,
		Kind:            j.kind,
		TotalItems:      len(j.items),
		SuccessfulItems: int(j.progress.succeeded.Load()),
		FailedItems:     int(j.progress.failed.Load()),
		StartedAt:       j.startedAt,
		EndedAt:         j.endedAt,
		Duration:        j.endedAt.Sub(j.startedAt),
		FinalStatus:     j.status,
		ErrorRate:       j.errorRate(),
		Config:          j.config(),
	}
}
