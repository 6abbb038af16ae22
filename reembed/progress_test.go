package reembed

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_ReportsEveryInterval(t *testing.T) {
	var reports []Progress
	tracker := NewProgressTracker(func(p Progress) { reports = append(reports, p) }, 100, 10)

	tracker.Start()
	tracker.Add(5, 0)
	assert.Empty(t, reports)

	tracker.Add(3, 2)
	assert.Len(t, reports, 1)
	assert.Equal(t, 8, reports[0].Processed)
	assert.Equal(t, 2, reports[0].Failed)
	assert.Equal(t, 10, reports[0].Done())

	tracker.Add(4, 0)
	assert.Len(t, reports, 1)

	final := tracker.Finish()
	assert.Len(t, reports, 2)
	assert.Equal(t, 12, final.Processed)
	assert.Equal(t, 100, final.Total)
}

func TestProgressTracker_NotStarted(t *testing.T) {
	called := false
	tracker := NewProgressTracker(func(Progress) { called = true }, 10, 1)

	tracker.Add(5, 0)
	final := tracker.Finish()
	assert.False(t, called)
	assert.Zero(t, final.Processed)
	assert.Zero(t, final.Elapsed)
}

func TestProgressTracker_Rate(t *testing.T) {
	tracker := NewProgressTracker(nil, 10, 100)
	tracker.Start()
	time.Sleep(10 * time.Millisecond)
	tracker.Add(10, 0)

	p := tracker.Snapshot()
	assert.Greater(t, p.Elapsed, time.Duration(0))
	assert.Greater(t, p.Rate, 0.0)
}

func TestWriterProgress(t *testing.T) {
	var buf bytes.Buffer
	WriterProgress(&buf)(Progress{Total: 100, Processed: 90, Failed: 10, Rate: 12.5})

	out := buf.String()
	assert.Contains(t, out, "100/100")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "10 failed")
	assert.Contains(t, out, "12.5 nodes/s")
}
