package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress is a point-in-time view of a re-embedding run.
type Progress struct {
	Total     int
	Processed int
	Failed    int
	Elapsed   time.Duration
	// Rate is nodes handled per second, failed ones included.
	Rate float64
}

// Done is the number of nodes handled so far.
func (p Progress) Done() int {
	return p.Processed + p.Failed
}

// ProgressFunc receives progress reports.
type ProgressFunc func(Progress)

// ProgressTracker tracks re-embedding progress and reports it through a
// callback every reportInterval nodes.
type ProgressTracker struct {
	report         ProgressFunc
	total          int
	processed      int
	failed         int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// report: receives progress; nil disables reporting
// total: total number of nodes to process
// reportInterval: report progress every N nodes
func NewProgressTracker(report ProgressFunc, total, reportInterval int) *ProgressTracker {
	if reportInterval <= 0 {
		reportInterval = 1
	}
	return &ProgressTracker{
		report:         report,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.processed = 0
	p.failed = 0
	p.lastReported = 0
}

// Add records the outcome of a batch.
func (p *ProgressTracker) Add(processed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.processed += processed
	p.failed += failed

	done := p.processed + p.failed
	if done-p.lastReported >= p.reportInterval {
		p.emit()
		p.lastReported = done
	}
}

// Finish reports the final progress.
func (p *ProgressTracker) Finish() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return Progress{Total: p.total}
	}
	return p.emit()
}

// Snapshot returns the current progress without reporting it.
func (p *ProgressTracker) Snapshot() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *ProgressTracker) snapshot() Progress {
	prog := Progress{Total: p.total, Processed: p.processed, Failed: p.failed}
	if p.started {
		prog.Elapsed = time.Since(p.startTime)
		if secs := prog.Elapsed.Seconds(); secs > 0 {
			prog.Rate = float64(prog.Done()) / secs
		}
	}
	return prog
}

// emit reports the current progress. Must be called with lock held.
func (p *ProgressTracker) emit() Progress {
	prog := p.snapshot()
	if p.report != nil {
		p.report(prog)
	}
	return prog
}

// WriterProgress returns a ProgressFunc printing a single updating line to w.
func WriterProgress(w io.Writer) ProgressFunc {
	return func(p Progress) {
		percentage := 0.0
		if p.Total > 0 {
			percentage = float64(p.Done()) / float64(p.Total) * 100.0
		}
		fmt.Fprintf(w, "\rProgress: %d/%d (%.1f%%), %d failed - %.1f nodes/s",
			p.Done(), p.Total, percentage, p.Failed, p.Rate)
	}
}
