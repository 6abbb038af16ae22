package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeNodeMUS_RoundTrip(t *testing.T) {
	node := KnowledgeNode{
		Id:            NodeIDForLocator("https://example.com"),
		Title:         "Example",
		Summary:       "An example page",
		Tags:          []string{"example", "web"},
		KeyPoints:     []string{"first"},
		SourceType:    SourceTypeWeb,
		SourceLocator: "https://example.com",
		IsNew:         true,
		Confidence:    0.75,
		Vector:        []float32{0.1, 0.2, 0.3},
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}

	buf := make([]byte, KnowledgeNodeMUS.Size(node))
	n := KnowledgeNodeMUS.Marshal(node, buf)
	require.Equal(t, len(buf), n)

	got, read, err := KnowledgeNodeMUS.Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, n, read)
	assert.Equal(t, node.Id, got.Id)
	assert.Equal(t, node.Tags, got.Tags)
	assert.Equal(t, node.Vector, got.Vector)
	assert.True(t, node.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, got.UpdatedAt.IsZero(), "zero time should survive encoding")
}

func TestJobHistoryEntryMUS_Skip(t *testing.T) {
	entry := JobHistoryEntry{
		JobId:       "abc12345",
		Run:         1,
		Kind:        JobKindCrawl,
		TotalItems:  10,
		FinalStatus: JobStatusCompleted,
		Duration:    3 * time.Second,
		Config:      DefaultJobConfig(),
	}

	buf := make([]byte, JobHistoryEntryMUS.Size(entry))
	JobHistoryEntryMUS.Marshal(entry, buf)

	n, err := JobHistoryEntryMUS.Skip(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	got, _, err := JobHistoryEntryMUS.Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, entry.Config, got.Config)
	assert.Equal(t, entry.Duration, got.Duration)
}
