package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historyEntry(jobID string, run int, kind core.JobKind, ok, failed int, ended time.Time) *core.JobHistoryEntry {
	return &core.JobHistoryEntry{
		JobId:           jobID,
		Run:             run,
		Kind:            kind,
		TotalItems:      ok + failed,
		SuccessfulItems: ok,
		FailedItems:     failed,
		StartedAt:       ended.Add(-time.Minute),
		EndedAt:         ended,
		Duration:        time.Minute,
		FinalStatus:     core.JobStatusCompleted,
		Config:          core.DefaultJobConfig(),
	}
}

func TestAppendHistory_RejectsDuplicateRun(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.History.AppendHistory(ctx, historyEntry("job-1", 1, core.JobKindUpload, 3, 0, now)))
	err := store.History.AppendHistory(ctx, historyEntry("job-1", 1, core.JobKindUpload, 1, 2, now))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	require.NoError(t, store.History.AppendHistory(ctx, historyEntry("job-1", 2, core.JobKindUpload, 1, 2, now)))

	runs, err := store.History.GetHistory(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].Run)
	assert.Equal(t, 3, runs[0].SuccessfulItems)
	assert.Equal(t, 2, runs[1].Run)
}

func TestGetHistory_NotFound(t *testing.T) {
	store := setupStore(t)
	_, err := store.History.GetHistory(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetHistory_DoesNotMatchPrefixJob(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.History.AppendHistory(ctx, historyEntry("job", 1, core.JobKindUpload, 1, 0, now)))
	require.NoError(t, store.History.AppendHistory(ctx, historyEntry("job-2", 1, core.JobKindUpload, 1, 0, now)))

	runs, err := store.History.GetHistory(ctx, "job")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestListHistory_FilterAndPaginate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.History.AppendHistory(ctx, historyEntry("a", 1, core.JobKindUpload, 10, 0, base.Add(-3*time.Hour))))
	require.NoError(t, store.History.AppendHistory(ctx, historyEntry("b", 1, core.JobKindCrawl, 5, 5, base.Add(-2*time.Hour))))
	require.NoError(t, store.History.AppendHistory(ctx, historyEntry("c", 1, core.JobKindUpload, 9, 1, base.Add(-1*time.Hour))))

	all, total, err := store.History.ListHistory(ctx, storage.HistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].JobId)
	assert.Equal(t, "a", all[2].JobId)

	uploads, total, err := store.History.ListHistory(ctx, storage.HistoryQuery{Kind: core.JobKindUpload})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, uploads, 2)

	good, total, err := store.History.ListHistory(ctx, storage.HistoryQuery{MinSuccessRate: 0.8})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, e := range good {
		assert.GreaterOrEqual(t, e.SuccessRate(), 0.8)
	}

	page, total, err := store.History.ListHistory(ctx, storage.HistoryQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].JobId)

	empty, total, err := store.History.ListHistory(ctx, storage.HistoryQuery{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, empty)

	_, _, err = store.History.ListHistory(ctx, storage.HistoryQuery{Limit: -1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}
