package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/extract"
	"github.com/poiesic/kexpand/graph"
	"github.com/poiesic/kexpand/novelty"
)

// Stage is a step of the ingestion pipeline.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageExtracting  Stage = "extracting"
	StageSummarizing Stage = "summarizing"
	StageClassifying Stage = "classifying"
	StageLinking     Stage = "linking"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Item is one source to ingest.
type Item struct {
	ID         string          `json:"item_id"`
	Locator    string          `json:"locator"`
	SourceType core.SourceType `json:"source_type"`
	// Depth is the crawl depth; 0 for seeds and uploads.
	Depth int `json:"depth"`
}

// Outcome is the result of processing one item.
type Outcome struct {
	Item       Item
	Stage      Stage // StageDone or StageFailed
	FailedAt   Stage // the stage that failed, empty on success
	NodeID     core.ID
	Title      string
	IsNew      bool
	Confidence float64
	Related    []novelty.Relation
	// Links are the outbound links of web items, for the crawler.
	Links     []string
	Usage     core.TokenUsage
	Model     string
	Duration  time.Duration
	Err       error
	ErrorKind core.ErrorKind
}

// Succeeded reports whether the item reached StageDone.
func (o *Outcome) Succeeded() bool {
	return o.Stage == StageDone
}

// Pipeline processes items through extraction, summarization, novelty
// classification and graph linking. It holds no per-item state and is
// safe for concurrent use.
type Pipeline struct {
	extractor  extract.Extractor
	embedder   ai.Embedder
	classifier *novelty.Classifier
	linker     *graph.Linker
	summarizer summarizer
	observer   StageObserver
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithEmbedder sets the embedder used for node vectors. Without one, nodes
// are classified on tags alone.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(p *Pipeline) error {
		p.embedder = embedder
		return nil
	}
}

// WithObserver sets the observer used by Process.
func WithObserver(observer StageObserver) Option {
	return func(p *Pipeline) error {
		p.observer = observer
		return nil
	}
}

// WithChunkSize sets the rune length long text is split at.
func WithChunkSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 100 {
			return fmt.Errorf("%w: chunk size must be at least 100", core.ErrConfiguration)
		}
		p.summarizer.chunkSize = size
		return nil
	}
}

// WithParseAttempts sets how many responses are requested before a
// malformed summary fails the item.
func WithParseAttempts(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("%w: parse attempts must be at least 1", core.ErrConfiguration)
		}
		p.summarizer.parseAttempts = n
		return nil
	}
}

// WithSummaryTemplate summarizes through a stored prompt template instead
// of the built-in prompt. The template must declare a single {text} variable.
func WithSummaryTemplate(id string) Option {
	return func(p *Pipeline) error {
		p.summarizer.templateID = id
		return nil
	}
}

// WithModels sets the model preference chain for summarization.
func WithModels(models ...string) Option {
	return func(p *Pipeline) error {
		p.summarizer.models = models
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	extractor extract.Extractor,
	router Invoker,
	classifier *novelty.Classifier,
	linker *graph.Linker,
	opts ...Option,
) (*Pipeline, error) {
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if router == nil {
		return nil, ErrRouterRequired
	}
	if classifier == nil {
		return nil, ErrClassifierRequired
	}
	if linker == nil {
		return nil, ErrLinkerRequired
	}

	p := &Pipeline{
		extractor:  extractor,
		classifier: classifier,
		linker:     linker,
		summarizer: summarizer{
			router:        router,
			chunkSize:     DefaultChunkSize,
			parseAttempts: DefaultParseAttempts,
		},
		observer: &noopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")
	p.summarizer.logger = p.logger
	return p, nil
}

// Process runs item through every stage and reports to the pipeline's observer.
func (p *Pipeline) Process(ctx context.Context, item Item) *Outcome {
	return p.ProcessWithObserver(ctx, item, p.observer)
}

// ProcessWithObserver runs item through every stage, reporting each
// transition to observer. A nil observer discards them.
func (p *Pipeline) ProcessWithObserver(ctx context.Context, item Item, observer StageObserver) *Outcome {
	if observer == nil {
		observer = &noopObserver{}
	}
	start := time.Now()
	out := &Outcome{Item: item}
	stage := func(s Stage) {
		out.Stage = s
		observer.OnStage(item, s)
	}
	fail := func(err error) *Outcome {
		out.FailedAt = out.Stage
		out.ErrorKind = core.KindOf(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			if !errors.Is(err, ctxErr) {
				err = fmt.Errorf("%w: %w", ctxErr, err)
			}
			out.ErrorKind = core.ErrorKindCancelled
		}
		out.Err = err
		out.Duration = time.Since(start)
		p.logger.Warn("item failed", "item", item.ID, "locator", item.Locator, "stage", out.FailedAt, "kind", out.ErrorKind, "err", err)
		stage(StageFailed)
		return out
	}

	stage(StageQueued)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	stage(StageExtracting)
	doc, err := p.extractor.Extract(ctx, item.Locator, item.SourceType)
	if err != nil {
		if !errors.Is(err, core.ErrExtraction) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", core.ErrExtraction, err)
		}
		return fail(err)
	}
	out.Links = doc.Links

	stage(StageSummarizing)
	res, err := p.summarizer.summarize(ctx, doc.Text)
	if res != nil {
		out.Usage, out.Model = res.usage, res.model
	}
	if err != nil {
		return fail(err)
	}
	summary := res.summary
	title := summary.Title
	if title == "" {
		title = doc.Title
	}
	if title == "" {
		title = firstLine(summary.Summary, 80)
	}
	vector := embedSummary(ctx, p.embedder, title, summary.Summary, p.logger)

	stage(StageClassifying)
	tags := summary.AllTags()
	verdict, err := p.classifier.Classify(ctx, novelty.Candidate{
		Summary:   summary.Summary,
		Tags:      tags,
		Embedding: vector,
		Exclude:   core.NodeIDForLocator(item.Locator),
	})
	if err != nil {
		return fail(fmt.Errorf("%w: classifying: %w", core.ErrGraphWrite, err))
	}

	stage(StageLinking)
	node := &core.KnowledgeNode{
		Title:         title,
		Summary:       summary.Summary,
		Tags:          tags,
		Topics:        summary.Topics,
		Entities:      summary.Entities,
		KeyPoints:     summary.MainPoints,
		SourceType:    item.SourceType,
		SourceLocator: item.Locator,
		IsNew:         verdict.IsNew,
		Confidence:    verdict.Confidence,
		Vector:        vector,
	}
	id, err := p.linker.Commit(ctx, node, verdict.Related)
	if err != nil {
		return fail(err)
	}

	out.NodeID = id
	out.Title = title
	out.IsNew = verdict.IsNew
	out.Confidence = verdict.Confidence
	out.Related = verdict.Related
	out.Duration = time.Since(start)
	stage(StageDone)
	p.logger.Debug("item ingested", "item", item.ID, "node", id, "is_new", verdict.IsNew, "related", len(verdict.Related), "duration", out.Duration)
	return out
}

// firstLine returns the first non-blank line of text cut to limit runes.
func firstLine(text string, limit int) string {
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > limit {
			return strings.TrimSpace(string(r[:limit]))
		}
		return line
	}
	return ""
}
