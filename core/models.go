package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for graph entities.
// Node IDs are content-based hashes of the source locator.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// NodeIDForLocator returns the node ID assigned to content from locator.
func NodeIDForLocator(locator string) ID {
	return IDFromContent("locator:" + strings.TrimSpace(locator))
}

// SourceType identifies where a node's content came from.
type SourceType string

const (
	SourceTypeDocument SourceType = "document"
	SourceTypeVideo    SourceType = "video"
	SourceTypeAudio    SourceType = "audio"
	SourceTypeWeb      SourceType = "web"
	SourceTypeText     SourceType = "text"
)

// SourceTypes lists every accepted source type.
var SourceTypes = []SourceType{
	SourceTypeDocument,
	SourceTypeVideo,
	SourceTypeAudio,
	SourceTypeWeb,
	SourceTypeText,
}

// KnowledgeNode is a unit of knowledge derived from one ingested source item.
// Once classified it only changes through re-ingestion of the same locator.
type KnowledgeNode struct {
	Id            ID         `json:"id"`
	Title         string     `json:"title"`
	Summary       string     `json:"summary"`
	Tags          []string   `json:"tags"`
	Topics        []string   `json:"topics,omitempty"`
	Entities      []string   `json:"entities,omitempty"`
	KeyPoints     []string   `json:"key_points,omitempty"`
	SourceType    SourceType `json:"source_type"`
	SourceLocator string     `json:"source_locator"`
	IsNew         bool       `json:"is_new_information"`
	Confidence    float64    `json:"confidence_score"`
	Vector        []float32  `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// KnowledgeEdge is a weighted, undirected link between two nodes.
type KnowledgeEdge struct {
	Source    ID        `json:"source"`
	Target    ID        `json:"target"`
	Weight    float64   `json:"weight"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Canonical returns the edge with Source <= Target.
func (e KnowledgeEdge) Canonical() KnowledgeEdge {
	e.Source, e.Target = OrderedPair(e.Source, e.Target)
	return e
}

// Other returns the endpoint of e that is not id.
func (e KnowledgeEdge) Other(id ID) ID {
	if e.Source == id {
		return e.Target
	}
	return e.Source
}

// OrderedPair returns a and b sorted ascending.
func OrderedPair(a, b ID) (ID, ID) {
	if a > b {
		return b, a
	}
	return a, b
}

// SimilarityQuery describes what a node should be compared against.
type SimilarityQuery struct {
	Vector    []float32
	Tags      []string
	ExcludeID ID
}

// SimilarNode is a node returned by a similarity query along with its score in [0,1].
type SimilarNode struct {
	Node  *KnowledgeNode
	Score float64
}

// NormalizeTags lowercases and trims tags, dropping empties and duplicates
// while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// JobKind distinguishes the two ingestion front-ends.
type JobKind string

const (
	JobKindUpload JobKind = "upload"
	JobKindCrawl  JobKind = "crawl"
)

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusCompleted JobStatus = "completed"
)

// Terminal reports whether no further dispatch can happen in this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCancelled || s == JobStatusCompleted
}

// JobConfig is the immutable configuration of a batch job.
type JobConfig struct {
	ConcurrencyLimit int     `json:"batch_size" yaml:"concurrency_limit"`
	ErrorThreshold   float64 `json:"error_threshold" yaml:"error_threshold"`
	AutoPause        bool    `json:"auto_pause" yaml:"auto_pause"`
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		ConcurrencyLimit: 10,
		ErrorThreshold:   0.2,
		AutoPause:        true,
	}
}

// JobHistoryEntry is the immutable final snapshot of a terminated job run.
type JobHistoryEntry struct {
	JobId           string        `json:"job_id"`
	Run             int           `json:"run"`
	Kind            JobKind       `json:"job_type"`
	TotalItems      int           `json:"total_items"`
	SuccessfulItems int           `json:"successful_items"`
	FailedItems     int           `json:"failed_items"`
	StartedAt       time.Time     `json:"start_time"`
	EndedAt         time.Time     `json:"end_time"`
	Duration        time.Duration `json:"duration"`
	FinalStatus     JobStatus     `json:"final_status"`
	ErrorRate       float64       `json:"error_rate"`
	Config          JobConfig     `json:"config"`
}

// SuccessRate returns the fraction of items that succeeded.
func (h *JobHistoryEntry) SuccessRate() float64 {
	if h.TotalItems == 0 {
		return 0
	}
	return float64(h.SuccessfulItems) / float64(h.TotalItems)
}

// TriggerErrorRate is the fallback trigger evaluated against a model's sliding window.
const TriggerErrorRate = "error_rate"

// FallbackConfig describes how the router cascades away from a failing model.
type FallbackConfig struct {
	PrimaryModel   string             `json:"primary_model" yaml:"primary"`
	FallbackModels []string           `json:"fallback_models" yaml:"fallbacks"`
	Triggers       map[string]float64 `json:"fallback_triggers" yaml:"triggers"`
	MaxRetries     int                `json:"max_retries" yaml:"max_retries"`
	Timeout        time.Duration      `json:"timeout" yaml:"timeout"`
}

// DefaultFallbackConfig returns a config for primary with no fallbacks.
func DefaultFallbackConfig(primary string) FallbackConfig {
	return FallbackConfig{
		PrimaryModel: primary,
		Triggers:     map[string]float64{TriggerErrorRate: 0.5},
		MaxRetries:   3,
		Timeout:      30 * time.Second,
	}
}

// Chain returns the primary model followed by the fallbacks in precedence order.
func (c FallbackConfig) Chain() []string {
	chain := make([]string, 0, len(c.FallbackModels)+1)
	chain = append(chain, c.PrimaryModel)
	return append(chain, c.FallbackModels...)
}

// ErrorRateTrigger returns the configured error rate trigger, or def when unset.
func (c FallbackConfig) ErrorRateTrigger(def float64) float64 {
	if v, ok := c.Triggers[TriggerErrorRate]; ok && v > 0 {
		return v
	}
	return def
}

// PromptTemplate is a reusable prompt with named {placeholders}.
type PromptTemplate struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Template    string    `json:"template"`
	Variables   []string  `json:"variables"`
	ModelName   string    `json:"model_name"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
	UsageCount  int64     `json:"usage_count"`
}

// TokenUsage accounts for the tokens consumed by one or more model calls.
type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"total_cost"`
}

// Add returns the sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		Cost:             u.Cost + o.Cost,
	}
}

// EmbeddingText returns the text a node's vector is computed from.
func EmbeddingText(title, summary string) string {
	return strings.TrimSpace(title + "\n" + summary)
}
