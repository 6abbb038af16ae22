package storage

import (
	"context"

	"github.com/poiesic/kexpand/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// GraphStore provides the knowledge graph operations the ingestion engine needs.
type GraphStore interface {
	Repository

	// UpsertNode inserts a node or replaces the node stored for the same source locator.
	// Nodes with ID=0 are assigned core.NodeIDForLocator(node.SourceLocator).
	// CreatedAt is preserved across updates; UpdatedAt is set on every write.
	// Returns the ID under which the node is stored.
	UpsertNode(ctx context.Context, node *core.KnowledgeNode) (core.ID, error)

	// GetNode retrieves a single node by ID.
	// Returns ErrNotFound if the node doesn't exist.
	GetNode(ctx context.Context, id core.ID) (*core.KnowledgeNode, error)

	// GetNodes retrieves multiple nodes by their IDs.
	// Returns only the nodes that exist (no error for missing nodes).
	GetNodes(ctx context.Context, ids ...core.ID) ([]*core.KnowledgeNode, error)

	// FindNodeByLocator looks a node up by its source locator.
	// Returns ErrNotFound if no node was ingested from that locator.
	FindNodeByLocator(ctx context.Context, locator string) (*core.KnowledgeNode, error)

	// UpsertEdge creates the edge between a and b or overwrites its weight.
	// There is at most one edge per unordered pair; (a,b) and (b,a) are the same edge.
	// Returns ErrNotFound if either endpoint doesn't exist.
	UpsertEdge(ctx context.Context, a, b core.ID, weight float64) (*core.KnowledgeEdge, error)

	// GetEdge retrieves the edge between a and b in either direction.
	// Returns ErrNotFound if the nodes are not linked.
	GetEdge(ctx context.Context, a, b core.ID) (*core.KnowledgeEdge, error)

	// GetEdges retrieves every edge touching id.
	GetEdges(ctx context.Context, id core.ID) ([]*core.KnowledgeEdge, error)

	// Similar returns up to k nodes ordered by similarity to query (highest first).
	// Scores are in [0,1]; ties are ordered by node ID ascending.
	Similar(ctx context.Context, query core.SimilarityQuery, k int) ([]core.SimilarNode, error)

	// CountNodes returns the number of stored nodes.
	CountNodes(ctx context.Context) (int, error)

	// ForEachNode calls fn with batches of up to batchSize nodes in ID order.
	// Iteration stops on the first error returned by fn.
	ForEachNode(ctx context.Context, batchSize int, fn func([]*core.KnowledgeNode) error) error
}

// HistoryQuery filters and paginates job history.
type HistoryQuery struct {
	Kind           core.JobKind // empty matches every kind
	MinSuccessRate float64      // entries below this success rate are skipped
	Limit          int          // 0 means no limit
	Offset         int
}

// HistoryRepository stores immutable snapshots of terminated jobs.
type HistoryRepository interface {
	// AppendHistory stores entry under (JobId, Run).
	// Returns ErrDuplicateKey if that run was already recorded.
	AppendHistory(ctx context.Context, entry *core.JobHistoryEntry) error

	// GetHistory returns every recorded run of jobID ordered by run.
	// Returns ErrNotFound if the job has no history.
	GetHistory(ctx context.Context, jobID string) ([]*core.JobHistoryEntry, error)

	// ListHistory returns matching entries newest first, plus the total match count
	// before pagination.
	ListHistory(ctx context.Context, query HistoryQuery) ([]*core.JobHistoryEntry, int, error)
}

// TemplateRepository persists prompt templates.
type TemplateRepository interface {
	// SaveTemplate inserts or replaces a template by ID.
	SaveTemplate(ctx context.Context, tmpl *core.PromptTemplate) error

	// GetTemplate retrieves a template by ID.
	// Returns ErrNotFound if the template doesn't exist.
	GetTemplate(ctx context.Context, id string) (*core.PromptTemplate, error)

	// ListTemplates returns every stored template ordered by creation time.
	ListTemplates(ctx context.Context) ([]*core.PromptTemplate, error)

	// DeleteTemplate removes a template.
	// Returns ErrNotFound if the template doesn't exist.
	DeleteTemplate(ctx context.Context, id string) error
}
