package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/llm"
)

const (
	// DefaultChunkSize is the rune length of the pieces long text is split into.
	DefaultChunkSize = 4000

	// DefaultParseAttempts is how many responses are requested before a
	// malformed summary fails the item.
	DefaultParseAttempts = 3
)

// Invoker runs a model invocation. *llm.Router implements it.
type Invoker interface {
	Invoke(ctx context.Context, inv llm.Invocation) (*llm.Result, error)
}

// summarizer produces structured summaries through the router.
type summarizer struct {
	router        Invoker
	templateID    string
	models        []string
	chunkSize     int
	parseAttempts int
	logger        *slog.Logger
}

// result is a summary together with what producing it cost.
type result struct {
	summary *Summary
	usage   core.TokenUsage
	model   string
	calls   int
}

// summarize summarizes text, splitting it into chunks when it is longer
// than the chunk size and merging the chunk summaries with a second pass.
func (s *summarizer) summarize(ctx context.Context, text string) (*result, error) {
	chunks := chunkText(text, s.chunkSize)
	if len(chunks) == 1 {
		return s.summarizeOne(ctx, summaryPrompt(), chunks[0])
	}

	s.logger.Debug("summarizing in chunks", "chunks", len(chunks), "runes", len([]rune(text)))
	total := &result{}
	parts := make([]*Summary, 0, len(chunks))
	for i, chunk := range chunks {
		r, err := s.summarizeOne(ctx, summaryPrompt(), chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		total.add(r)
		parts = append(parts, r.summary)
	}

	merged := mergeSummaries(parts)
	final, err := s.summarizeOne(ctx, mergePrompt(), merged.Summary)
	if err != nil {
		return nil, fmt.Errorf("merging chunk summaries: %w", err)
	}
	total.add(final)

	out := final.summary
	if out.Title == "" {
		out.Title = merged.Title
	}
	out.MainPoints = union(out.MainPoints, merged.MainPoints)
	out.Topics = union(out.Topics, merged.Topics)
	out.Entities = union(out.Entities, merged.Entities)
	out.Tags = union(out.Tags, merged.Tags)
	if out.KeyConcepts == nil {
		out.KeyConcepts = concepts{}
	}
	for k, v := range merged.KeyConcepts {
		if _, ok := out.KeyConcepts[k]; !ok {
			out.KeyConcepts[k] = v
		}
	}
	total.summary = out
	return total, nil
}

func (r *result) add(o *result) {
	r.usage = r.usage.Add(o.usage)
	r.model = o.model
	r.calls += o.calls
}

// summarizeOne asks for a summary of text until a response parses or the
// parse attempts run out. Router errors end the attempts immediately.
func (s *summarizer) summarizeOne(ctx context.Context, system, text string) (*result, error) {
	out := &result{}
	var lastErr error
	for attempt := 1; attempt <= s.parseAttempts; attempt++ {
		res, err := s.router.Invoke(ctx, s.invocation(system, text))
		if err != nil {
			return nil, err
		}
		out.usage = out.usage.Add(res.Usage)
		out.model = res.Model
		out.calls++

		summary, err := parseSummary(res.Text)
		if err == nil {
			out.summary = summary
			return out, nil
		}
		lastErr = err
		s.logger.Warn("unparseable summary", "model", res.Model, "attempt", attempt, "err", err)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrMalformedSummary, s.parseAttempts, lastErr)
}

func (s *summarizer) invocation(system, text string) llm.Invocation {
	if s.templateID != "" {
		return llm.Invocation{
			TemplateID: s.templateID,
			Variables:  map[string]string{"text": text},
			Models:     s.models,
			JSON:       true,
		}
	}
	return llm.Invocation{
		System: system,
		Prompt: text,
		Models: s.models,
		JSON:   true,
	}
}

// chunkText splits text into pieces of at most size runes, breaking at the
// last whitespace in the second half of a piece when there is one.
func chunkText(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= size {
			if piece := strings.TrimSpace(string(runes)); piece != "" {
				chunks = append(chunks, piece)
			}
			break
		}
		cut := size
		for i := size - 1; i > size/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i + 1
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			chunks = append(chunks, piece)
		}
		runes = runes[cut:]
	}
	return chunks
}
