package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/ai/mock"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/extract"
	"github.com/poiesic/kexpand/graph"
	"github.com/poiesic/kexpand/llm"
	"github.com/poiesic/kexpand/novelty"
	"github.com/poiesic/kexpand/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor serves documents from a map keyed by locator.
type fakeExtractor struct {
	docs map[string]*extract.Document
}

func (f *fakeExtractor) Extract(_ context.Context, locator string, _ core.SourceType) (*extract.Document, error) {
	doc, ok := f.docs[locator]
	if !ok {
		return nil, extract.ErrFetch
	}
	return doc, nil
}

type fixture struct {
	store    *badger.Store
	provider *mock.MockProvider
	docs     map[string]*extract.Document
	pipeline *Pipeline
}

func setupPipeline(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry, err := llm.NewRegistry()
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })
	provider := mock.NewMockProvider("mock-model")
	require.NoError(t, registry.Register(provider, nil))
	cfg := core.DefaultFallbackConfig("mock-model")
	cfg.MaxRetries = 0
	require.NoError(t, registry.ConfigureFallback(cfg))

	router, err := llm.NewRouter(registry, nil, llm.WithDefaultModel("mock-model"))
	require.NoError(t, err)

	classifier, err := novelty.NewClassifier(store.Graph)
	require.NoError(t, err)
	linker, err := graph.NewLinker(store.Graph)
	require.NoError(t, err)

	docs := map[string]*extract.Document{}
	p, err := NewPipeline(&fakeExtractor{docs: docs}, router, classifier, linker, opts...)
	require.NoError(t, err)

	return &fixture{store: store, provider: provider, docs: docs, pipeline: p}
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	_, err := NewPipeline(nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrExtractorRequired)

	_, err = NewPipeline(&fakeExtractor{}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrRouterRequired)
}

func TestNewPipeline_RejectsBadOptions(t *testing.T) {
	f := setupPipeline(t)
	_, err := NewPipeline(f.pipeline.extractor, f.pipeline.summarizer.router, f.pipeline.classifier, f.pipeline.linker, WithChunkSize(10))
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = NewPipeline(f.pipeline.extractor, f.pipeline.summarizer.router, f.pipeline.classifier, f.pipeline.linker, WithParseAttempts(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestPipeline_StagesInOrder(t *testing.T) {
	f := setupPipeline(t)
	f.docs["doc-1"] = &extract.Document{
		Title: "Storage engines",
		Text:  "Log structured merge trees trade write amplification for read performance.",
		Links: []string{"https://example.com/lsm"},
	}

	var stages []Stage
	obs := StageObserverFunc(func(item Item, stage Stage) {
		assert.Equal(t, "item-1", item.ID)
		stages = append(stages, stage)
	})

	out := f.pipeline.ProcessWithObserver(context.Background(), Item{ID: "item-1", Locator: "doc-1", SourceType: core.SourceTypeDocument}, obs)
	require.NoError(t, out.Err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, []Stage{StageQueued, StageExtracting, StageSummarizing, StageClassifying, StageLinking, StageDone}, stages)

	assert.Equal(t, core.NodeIDForLocator("doc-1"), out.NodeID)
	assert.True(t, out.IsNew)
	assert.Equal(t, 1.0, out.Confidence)
	assert.Empty(t, out.Related)
	assert.Equal(t, []string{"https://example.com/lsm"}, out.Links)
	assert.Equal(t, "mock-model", out.Model)
	assert.Positive(t, out.Usage.TotalTokens)

	node, err := f.store.Graph.GetNode(context.Background(), out.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", node.SourceLocator)
	assert.Equal(t, core.SourceTypeDocument, node.SourceType)
	assert.NotEmpty(t, node.Summary)
	assert.Equal(t, []string{"structured", "merge", "trees"}, node.Tags)
}

func TestPipeline_DuplicateContentIsLinked(t *testing.T) {
	f := setupPipeline(t)
	text := "Vector clocks order events across distributed replicas."
	f.docs["a"] = &extract.Document{Text: text}
	f.docs["b"] = &extract.Document{Text: text}
	ctx := context.Background()

	first := f.pipeline.Process(ctx, Item{ID: "1", Locator: "a", SourceType: core.SourceTypeText})
	require.NoError(t, first.Err)
	assert.True(t, first.IsNew)

	second := f.pipeline.Process(ctx, Item{ID: "2", Locator: "b", SourceType: core.SourceTypeText})
	require.NoError(t, second.Err)
	assert.False(t, second.IsNew)
	assert.InDelta(t, 0.0, second.Confidence, 1e-9)
	require.Len(t, second.Related, 1)
	assert.Equal(t, first.NodeID, second.Related[0].ID)

	edge, err := f.store.Graph.GetEdge(ctx, first.NodeID, second.NodeID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, edge.Weight, 1e-9)
}

func TestPipeline_ReingestionDoesNotMatchItself(t *testing.T) {
	f := setupPipeline(t)
	f.docs["a"] = &extract.Document{Text: "Consistent hashing spreads partitions evenly across nodes."}
	ctx := context.Background()

	first := f.pipeline.Process(ctx, Item{ID: "1", Locator: "a", SourceType: core.SourceTypeText})
	require.NoError(t, first.Err)
	again := f.pipeline.Process(ctx, Item{ID: "2", Locator: "a", SourceType: core.SourceTypeText})
	require.NoError(t, again.Err)

	assert.Equal(t, first.NodeID, again.NodeID)
	assert.True(t, again.IsNew)
	assert.Empty(t, again.Related)

	count, err := f.store.Graph.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPipeline_ExtractionFailure(t *testing.T) {
	f := setupPipeline(t)
	var stages []Stage
	obs := StageObserverFunc(func(_ Item, stage Stage) { stages = append(stages, stage) })

	out := f.pipeline.ProcessWithObserver(context.Background(), Item{ID: "x", Locator: "missing"}, obs)
	assert.False(t, out.Succeeded())
	assert.Equal(t, StageFailed, out.Stage)
	assert.Equal(t, StageExtracting, out.FailedAt)
	assert.Equal(t, core.ErrorKindExtraction, out.ErrorKind)
	assert.ErrorIs(t, out.Err, core.ErrExtraction)
	assert.Equal(t, []Stage{StageQueued, StageExtracting, StageFailed}, stages)
	assert.Equal(t, 0, f.provider.CallCount())
}

func TestPipeline_MalformedSummary(t *testing.T) {
	f := setupPipeline(t, WithParseAttempts(2))
	f.docs["a"] = &extract.Document{Text: "some text"}
	f.provider.GenerateFunc = func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		return &ai.Response{Text: "I cannot produce JSON today."}, nil
	}

	out := f.pipeline.Process(context.Background(), Item{ID: "1", Locator: "a", SourceType: core.SourceTypeText})
	assert.Equal(t, StageSummarizing, out.FailedAt)
	assert.ErrorIs(t, out.Err, ErrMalformedSummary)
	assert.Equal(t, core.ErrorKindProvider, out.ErrorKind)
	assert.Equal(t, 2, f.provider.CallCount())
}

func TestPipeline_ProviderFailure(t *testing.T) {
	f := setupPipeline(t)
	f.docs["a"] = &extract.Document{Text: "some text"}
	f.provider.GenerateFunc = func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		return nil, ai.NewProviderError(ai.KindMock, "mock-model", errors.New("503 service unavailable"))
	}

	out := f.pipeline.Process(context.Background(), Item{ID: "1", Locator: "a", SourceType: core.SourceTypeText})
	assert.Equal(t, StageSummarizing, out.FailedAt)
	assert.ErrorIs(t, out.Err, core.ErrProvider)
	assert.Equal(t, core.ErrorKindProvider, out.ErrorKind)
}

func TestPipeline_CancelledContext(t *testing.T) {
	f := setupPipeline(t)
	f.docs["a"] = &extract.Document{Text: "some text"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.pipeline.Process(ctx, Item{ID: "1", Locator: "a", SourceType: core.SourceTypeText})
	assert.Equal(t, StageQueued, out.FailedAt)
	assert.Equal(t, core.ErrorKindCancelled, out.ErrorKind)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestPipeline_LongTextIsChunkedAndMerged(t *testing.T) {
	f := setupPipeline(t, WithChunkSize(100))
	text := strings.Repeat("Raft elects leaders through randomized election timeouts. ", 6)
	f.docs["a"] = &extract.Document{Text: text}

	out := f.pipeline.Process(context.Background(), Item{ID: "1", Locator: "a", SourceType: core.SourceTypeText})
	require.NoError(t, out.Err)

	chunks := chunkText(text, 100)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, len(chunks)+1, f.provider.CallCount())
}

func TestPipeline_TitleFallsBackToDocument(t *testing.T) {
	f := setupPipeline(t)
	f.docs["a"] = &extract.Document{Title: "Document Title", Text: "body text here"}
	f.provider.GenerateFunc = func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		return &ai.Response{Text: `{"summary": "A short summary.", "tags": ["short"]}`}, nil
	}

	out := f.pipeline.Process(context.Background(), Item{ID: "1", Locator: "a", SourceType: core.SourceTypeText})
	require.NoError(t, out.Err)
	assert.Equal(t, "Document Title", out.Title)
}

func TestPipeline_EmbedderFailureIsNotFatal(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding backend down")
	}
	f := setupPipeline(t, WithEmbedder(embedder))
	f.docs["a"] = &extract.Document{Text: "Bloom filters answer membership queries with false positives."}

	out := f.pipeline.Process(context.Background(), Item{ID: "1", Locator: "a", SourceType: core.SourceTypeText})
	require.NoError(t, out.Err)

	node, err := f.store.Graph.GetNode(context.Background(), out.NodeID)
	require.NoError(t, err)
	assert.Empty(t, node.Vector)
}

func TestPipeline_StoresNormalizedVector(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dim = 8
	f := setupPipeline(t, WithEmbedder(embedder))
	f.docs["a"] = &extract.Document{Text: "Merkle trees detect divergent replicas cheaply."}

	out := f.pipeline.Process(context.Background(), Item{ID: "1", Locator: "a", SourceType: core.SourceTypeText})
	require.NoError(t, out.Err)

	node, err := f.store.Graph.GetNode(context.Background(), out.NodeID)
	require.NoError(t, err)
	require.Len(t, node.Vector, 8)
	var sum float64
	for _, v := range node.Vector {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "second", firstLine("\n  \nsecond\nthird", 80))
	assert.Equal(t, "abc", firstLine("abcdef", 3))
	assert.Equal(t, "", firstLine("   ", 10))
}
