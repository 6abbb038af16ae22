package llm

import "sync"

// DefaultWindowSize is the number of recent outcomes a Window remembers.
const DefaultWindowSize = 20

// Window is a fixed-size ring of the most recent call outcomes of one model.
// It is safe for concurrent use.
type Window struct {
	mu       sync.Mutex
	failed   []bool
	next     int
	count    int
	failures int
}

// NewWindow creates a window remembering size outcomes.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{failed: make([]bool, size)}
}

// Record adds one outcome, evicting the oldest once the window is full.
func (w *Window) Record(failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == len(w.failed) {
		if w.failed[w.next] {
			w.failures--
		}
	} else {
		w.count++
	}
	w.failed[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.failed)
}

// ErrorRate returns failures over recorded outcomes, or 0 when empty.
func (w *Window) ErrorRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.count)
}

// Len returns the number of outcomes currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Reset forgets every outcome.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.failed)
	w.next, w.count, w.failures = 0, 0, 0
}
