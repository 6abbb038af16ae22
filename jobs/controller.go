package jobs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/ingestion"
	"github.com/poiesic/kexpand/storage"
)

// historyTimeout bounds the write of a history entry.
const historyTimeout = 10 * time.Second

// Processor runs one item through the ingestion stages.
// *ingestion.Pipeline implements it.
type Processor interface {
	ProcessWithObserver(ctx context.Context, item ingestion.Item, observer ingestion.StageObserver) *ingestion.Outcome
}

// Action is a user control action on a job.
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

// ParseAction validates a control action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionPause, ActionResume, ActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Controller owns batch jobs and their dispatch.
type Controller struct {
	processor Processor
	history   storage.HistoryRepository
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	mu   sync.RWMutex
	jobs map[string]*job

	amu     sync.Mutex
	samples []analyticsSample
}

// Option configures a Controller.
type Option func(*Controller) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewController creates a controller that processes items with processor and
// records terminated jobs in history.
func NewController(processor Processor, history storage.HistoryRepository, opts ...Option) (*Controller, error) {
	if processor == nil {
		return nil, ErrProcessorRequired
	}
	if history == nil {
		return nil, ErrHistoryRequired
	}
	c := &Controller{
		processor: processor,
		history:   history,
		logger:    slog.Default(),
		jobs:      make(map[string]*job),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "jobs")
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

type submitOptions struct {
	expander Expander
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitOptions)

// WithExpander sets a hook called with every successful outcome of the job.
func WithExpander(expander Expander) SubmitOption {
	return func(o *submitOptions) {
		o.expander = expander
	}
}

// Submit creates a running job over items and starts dispatching them.
func (c *Controller) Submit(ctx context.Context, kind core.JobKind, items []ingestion.Item, cfg core.JobConfig, opts ...SubmitOption) (*Snapshot, error) {
	if c.closed.Load() {
		return nil, ErrControllerClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kind != core.JobKindUpload && kind != core.JobKindCrawl {
		return nil, fmt.Errorf("%w: unknown job kind %q", core.ErrConfiguration, kind)
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if err := core.ValidateJobConfig(cfg); err != nil {
		return nil, err
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}

	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}

	pool, err := ants.NewPool(cfg.ConcurrencyLimit)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	j := newJob(uuid.NewString(), kind, cfg, pool, so.expander)

	c.mu.Lock()
	c.jobs[j.id] = j
	c.mu.Unlock()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.addLocked(j.newItems(items))
	activeJobs.Inc()
	transitionsTotal.WithLabelValues(string(core.JobStatusRunning)).Inc()
	c.startLocked(j)
	c.logger.Info("job submitted", "job", j.id, "kind", kind, "items", len(items), "concurrency", cfg.ConcurrencyLimit)
	return j.snapshotLocked(), nil
}

func validateItems(items []ingestion.Item) error {
	for i, it := range items {
		if it.Locator == "" {
			return fmt.Errorf("%w: item %d: %w", core.ErrConfiguration, i, core.ErrEmptyLocator)
		}
		if _, err := core.ParseSourceType(string(it.SourceType)); err != nil {
			return fmt.Errorf("%w: item %d: %w", core.ErrConfiguration, i, err)
		}
	}
	return nil
}

// newItems assigns short IDs unique within the job.
func (j *job) newItems(specs []ingestion.Item) []*Item {
	out := make([]*Item, 0, len(specs))
	taken := func(id string) bool {
		if _, ok := j.index[id]; ok {
			return true
		}
		return slices.ContainsFunc(out, func(it *Item) bool { return it.ID == id })
	}
	for _, spec := range specs {
		id := spec.ID
		if id == "" || taken(id) {
			id = uuid.NewString()[:8]
			for taken(id) {
				id = uuid.NewString()[:8]
			}
		}
		out = append(out, &Item{
			ID:         id,
			Locator:    spec.Locator,
			SourceType: spec.SourceType,
			Depth:      spec.Depth,
			Status:     ItemPending,
			Stage:      ingestion.StageQueued,
		})
	}
	return out
}

// Enqueue adds items to a job that has not terminated. It returns the
// assigned item IDs.
func (c *Controller) Enqueue(id string, items []ingestion.Item) ([]string, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	j, err := c.job(id)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return nil, fmt.Errorf("%w: cannot add items to %s job", core.ErrJobState, j.status)
	}
	added := j.newItems(items)
	j.addLocked(added)
	c.startLocked(j)
	j.notifyLocked()

	ids := make([]string, len(added))
	for i, it := range added {
		ids[i] = it.ID
	}
	return ids, nil
}

// Control applies a pause, resume or cancel action.
// Illegal transitions return core.ErrJobState and change nothing.
func (c *Controller) Control(id string, action Action) (*Snapshot, error) {
	j, err := c.job(id)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	switch action {
	case ActionPause:
		if j.status != core.JobStatusRunning {
			return nil, fmt.Errorf("%w: cannot pause %s job", core.ErrJobState, j.status)
		}
		c.transitionLocked(j, core.JobStatusPaused)
	case ActionResume:
		if j.status != core.JobStatusPaused {
			return nil, fmt.Errorf("%w: cannot resume %s job", core.ErrJobState, j.status)
		}
		c.transitionLocked(j, core.JobStatusRunning)
		c.startLocked(j)
	case ActionCancel:
		if j.status.Terminal() {
			return nil, fmt.Errorf("%w: cannot cancel %s job", core.ErrJobState, j.status)
		}
		c.transitionLocked(j, core.JobStatusCancelled)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	c.settleLocked(j)
	j.notifyLocked()
	return j.snapshotLocked(), nil
}

// Retry re-queues failed items. Succeeded items are left untouched. Each
// retried item adds one attempt to the job total, so the processed count
// keeps growing. Retrying items of a completed job reopens it as a new run.
func (c *Controller) Retry(id string, itemIDs []string) (*Snapshot, error) {
	j, err := c.job(id)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status == core.JobStatusCancelled {
		return nil, fmt.Errorf("%w: cannot retry items of cancelled job", core.ErrJobState)
	}
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("%w: no items to retry", core.ErrConfiguration)
	}
	var pool *ants.Pool
	if j.status == core.JobStatusCompleted {
		var err error
		if pool, err = ants.NewPool(j.config().ConcurrencyLimit); err != nil {
			return nil, fmt.Errorf("creating worker pool: %w", err)
		}
	}
	var retry []*Item
	for _, itemID := range itemIDs {
		it, ok := j.index[itemID]
		if !ok {
			if pool != nil {
				pool.Release()
			}
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		if slices.Contains(retry, it) {
			continue
		}
		if it.Status != ItemFailed {
			if pool != nil {
				pool.Release()
			}
			return nil, fmt.Errorf("%w: item %s is %s, only failed items can be retried", core.ErrJobState, itemID, it.Status)
		}
		retry = append(retry, it)
	}

	for _, it := range retry {
		it.Status = ItemPending
		it.Stage = ingestion.StageQueued
		it.Error = ""
		it.ErrorKind = ""
		j.progress.failed.Add(-1)
		j.queue = append(j.queue, it)
	}
	j.progress.total.Add(int64(len(retry)))
	j.updatedAt = time.Now()

	if j.status == core.JobStatusCompleted {
		j.run++
		j.finalized = false
		j.endedAt = time.Time{}
		j.runStartedAt = j.updatedAt
		j.runOutcomes = len(j.outcomes)
		j.pool = pool
		activeJobs.Inc()
		c.transitionLocked(j, core.JobStatusRunning)
		c.logger.Info("job reopened", "job", j.id, "run", j.run)
	}
	c.startLocked(j)
	j.notifyLocked()
	c.logger.Info("items requeued", "job", j.id, "items", len(retry))
	return j.snapshotLocked(), nil
}

// Configure replaces a job's configuration. The new concurrency limit
// applies to the next dispatch.
func (c *Controller) Configure(id string, cfg core.JobConfig) (*Snapshot, error) {
	if err := core.ValidateJobConfig(cfg); err != nil {
		return nil, err
	}
	j, err := c.job(id)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return nil, fmt.Errorf("%w: cannot configure %s job", core.ErrJobState, j.status)
	}
	j.cfg.Store(&cfg)
	j.pool.Tune(cfg.ConcurrencyLimit)
	j.updatedAt = time.Now()
	j.notifyLocked()
	c.logger.Info("job reconfigured", "job", j.id, "concurrency", cfg.ConcurrencyLimit, "threshold", cfg.ErrorThreshold, "auto_pause", cfg.AutoPause)
	return j.snapshotLocked(), nil
}

// Status returns a snapshot of the job.
func (c *Controller) Status(id string) (*Snapshot, error) {
	j, err := c.job(id)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked(), nil
}

// Metrics returns the speed and quality metrics of the job.
func (c *Controller) Metrics(id string) (*Metrics, error) {
	j, err := c.job(id)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.metricsLocked(time.Now()), nil
}

// Outcomes returns every recorded processing attempt of the job in
// completion order.
func (c *Controller) Outcomes(id string) ([]ItemOutcome, error) {
	j, err := c.job(id)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.outcomes), nil
}

// List returns snapshots of every job, most recently started first.
func (c *Controller) List() []*Snapshot {
	c.mu.RLock()
	all := make([]*job, 0, len(c.jobs))
	for _, j := range c.jobs {
		all = append(all, j)
	}
	c.mu.RUnlock()

	out := make([]*Snapshot, 0, len(all))
	for _, j := range all {
		j.mu.Lock()
		out = append(out, j.snapshotLocked())
		j.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b *Snapshot) int {
		return cmp.Or(b.StartedAt.Compare(a.StartedAt), cmp.Compare(a.JobID, b.JobID))
	})
	return out
}

// Wait blocks until the job is settled: terminated with its history
// recorded, or paused with nothing in flight.
func (c *Controller) Wait(ctx context.Context, id string) (*Snapshot, error) {
	j, err := c.job(id)
	if err != nil {
		return nil, err
	}
	for {
		j.mu.Lock()
		if j.settledLocked() {
			s := j.snapshotLocked()
			j.mu.Unlock()
			return s, nil
		}
		changed := j.changed
		j.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.ctx.Done():
			return nil, ErrControllerClosed
		}
	}
}

// History returns recorded runs of terminated jobs, newest first, and the
// total number of matches.
func (c *Controller) History(ctx context.Context, query storage.HistoryQuery) ([]*core.JobHistoryEntry, int, error) {
	return c.history.ListHistory(ctx, query)
}

// Close stops dispatch, waits for in-flight items and releases the pools.
// In-flight items observe a cancelled context.
func (c *Controller) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	c.wg.Wait()

	c.mu.RLock()
	defer c.mu.RUnlock()
	var errs []error
	for _, j := range c.jobs {
		j.mu.Lock()
		pool := j.pool
		j.mu.Unlock()
		if !pool.IsClosed() {
			if err := pool.ReleaseTimeout(5 * time.Second); err != nil {
				errs = append(errs, fmt.Errorf("job %s: %w", j.id, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) job(id string) (*job, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, nil
}

func (c *Controller) transitionLocked(j *job, status core.JobStatus) {
	c.logger.Info("job status changed", "job", j.id, "from", j.status, "to", status)
	j.status = status
	j.updatedAt = time.Now()
	transitionsTotal.WithLabelValues(string(status)).Inc()
}

// startLocked starts the dispatch goroutine unless one is running.
func (c *Controller) startLocked(j *job) {
	if j.dispatching || j.status != core.JobStatusRunning || c.closed.Load() {
		return
	}
	j.dispatching = true
	c.wg.Add(1)
	go c.dispatch(j)
}

// dispatch hands queued items to the job's pool in queue order. The job's
// in-flight count is its semaphore: dispatch blocks while it is at the
// concurrency limit.
func (c *Controller) dispatch(j *job) {
	defer c.wg.Done()
	for {
		j.mu.Lock()
		for j.status == core.JobStatusRunning && len(j.queue) > 0 &&
			j.running >= j.config().ConcurrencyLimit && c.ctx.Err() == nil {
			changed := j.changed
			j.mu.Unlock()
			select {
			case <-changed:
			case <-c.ctx.Done():
			}
			j.mu.Lock()
		}
		if j.status != core.JobStatusRunning || len(j.queue) == 0 || c.ctx.Err() != nil {
			j.dispatching = false
			j.mu.Unlock()
			return
		}

		it := j.queue[0]
		j.queue = j.queue[1:]
		it.Status = ItemRunning
		it.Attempts++
		j.running++
		j.updatedAt = time.Now()
		attempt := it.Attempts
		item := it.pipelineItem()
		pool := j.pool
		j.mu.Unlock()

		c.wg.Add(1)
		err := pool.Submit(func() {
			defer c.wg.Done()
			c.process(j, it, item, attempt)
		})
		if err != nil {
			c.wg.Done()
			c.record(j, it, attempt, &ingestion.Outcome{
				Item:      item,
				Stage:     ingestion.StageFailed,
				FailedAt:  ingestion.StageQueued,
				Err:       fmt.Errorf("submitting to pool: %w", err),
				ErrorKind: core.ErrorKindInternal,
			}, 0)
		}
	}
}

func (c *Controller) process(j *job, it *Item, item ingestion.Item, attempt int) {
	start := time.Now()
	stage := ingestion.StageQueued
	var out *ingestion.Outcome
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("item processing panicked", "job", j.id, "item", item.ID, "panic", r)
			out = &ingestion.Outcome{
				Item:      item,
				Stage:     ingestion.StageFailed,
				FailedAt:  stage,
				Err:       fmt.Errorf("internal panic: %v", r),
				ErrorKind: core.ErrorKindInternal,
			}
		}
		c.record(j, it, attempt, out, time.Since(start))
	}()

	observer := ingestion.StageObserverFunc(func(_ ingestion.Item, s ingestion.Stage) {
		stage = s
		j.mu.Lock()
		it.Stage = s
		j.updatedAt = time.Now()
		j.mu.Unlock()
	})
	out = c.processor.ProcessWithObserver(c.ctx, item, observer)
	if out == nil {
		out = &ingestion.Outcome{
			Item:      item,
			Stage:     ingestion.StageFailed,
			Err:       errors.New("processor returned no outcome"),
			ErrorKind: core.ErrorKindInternal,
		}
	}
	if out.Succeeded() && j.expander != nil {
		j.expander(j.id, item, out)
	}
}

// record applies one outcome to the job, then evaluates auto-pause and
// completion.
func (c *Controller) record(j *job, it *Item, attempt int, out *ingestion.Outcome, elapsed time.Duration) {
	now := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := ItemOutcome{
		ItemID:    it.ID,
		Attempt:   attempt,
		Succeeded: out.Succeeded(),
		Stage:     out.Stage,
		FailedAt:  out.FailedAt,
		NodeID:    out.NodeID,
		ErrorKind: out.ErrorKind,
		Duration:  elapsed,
		Usage:     out.Usage,
		At:        now,
	}
	if out.Succeeded() {
		it.Status = ItemSucceeded
		it.Stage = out.Stage
		it.NodeID = out.NodeID
		it.Title = out.Title
		it.IsNew = out.IsNew
		j.progress.succeeded.Add(1)
		itemsTotal.WithLabelValues(string(j.kind), "succeeded").Inc()
	} else {
		if entry.ErrorKind == "" {
			entry.ErrorKind = core.ErrorKindInternal
		}
		entry.Error = "unknown failure"
		if out.Err != nil {
			entry.Error = out.Err.Error()
		}
		it.Status = ItemFailed
		it.Stage = cmp.Or(out.FailedAt, out.Stage)
		it.Error = entry.Error
		it.ErrorKind = entry.ErrorKind
		j.progress.failed.Add(1)
		itemsTotal.WithLabelValues(string(j.kind), "failed").Inc()
	}
	j.progress.processed.Add(1)
	j.progress.completions.Add(1)
	j.progress.busy.Add(int64(elapsed))
	itemDuration.WithLabelValues(string(j.kind)).Observe(elapsed.Seconds())

	j.outcomes = append(j.outcomes, entry)
	j.running--
	j.updatedAt = now
	j.sampleLocked(now)

	cfg := j.config()
	if rate := j.errorRate(); j.status == core.JobStatusRunning && cfg.AutoPause && rate > cfg.ErrorThreshold {
		c.logger.Warn("error threshold exceeded, pausing job", "job", j.id, "error_rate", rate, "threshold", cfg.ErrorThreshold)
		autoPausesTotal.Inc()
		c.transitionLocked(j, core.JobStatusPaused)
	}
	c.settleLocked(j)
	j.notifyLocked()
}

// settleLocked completes a running job with no work left, and finalizes a
// terminal job once nothing is in flight.
func (c *Controller) settleLocked(j *job) {
	if j.status == core.JobStatusRunning && len(j.queue) == 0 && j.running == 0 {
		c.transitionLocked(j, core.JobStatusCompleted)
	}
	if !j.status.Terminal() || j.running > 0 || j.finalized {
		return
	}

	j.finalized = true
	j.endedAt = time.Now()
	j.pool.Release()
	activeJobs.Dec()

	entry := j.historyLocked()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), historyTimeout)
	defer cancel()
	if err := c.history.AppendHistory(ctx, entry); err != nil {
		c.logger.Error("failed to record job history", "job", j.id, "run", j.run, "err", err)
	}
	c.addSample(j.analyticsSampleLocked())
	c.logger.Info("job finished", "job", j.id, "run", j.run, "status", j.status,
		"total", entry.TotalItems, "succeeded", entry.SuccessfulItems, "failed", entry.FailedItems,
		"duration", entry.Duration)
}
