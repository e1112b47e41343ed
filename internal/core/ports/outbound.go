package ports

import (
	"context"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

// CompanyCatalog reads the equities snapshot the resolver is built from.
type CompanyCatalog interface {
	Companies(ctx context.Context) ([]domain.CompanyRecord, error)
	Aliases(ctx context.Context) ([]domain.AliasRow, error)
	SchemaLines(ctx context.Context) ([]string, error)
}

// IntentClassifier routes a question to an intent decision. Implementations
// must degrade to domain.FallbackIntentDecision instead of failing the request.
type IntentClassifier interface {
	Classify(ctx context.Context, question string) domain.IntentDecision
}

// SQLGenerator produces a candidate SELECT for the structured branch. The
// output is untrusted and always passes through the guardrail executor.
type SQLGenerator interface {
	Generate(ctx context.Context, question string, entities []domain.ResolvedEntity, companySpecific bool, intent domain.Intent) (domain.SQLGeneration, error)
}

// GuardedSQLExecutor validates, rewrites, and executes a candidate query
// against the single allowed table.
type GuardedSQLExecutor interface {
	ValidateAndExecute(ctx context.Context, candidateSQL string, companySpecific bool, entityISINs []string) domain.SQLExecutionResult
}

// Embedder builds the query vector for retrieval.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex performs similarity search over the externally populated index.
type VectorIndex interface {
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
}

// ComposeInput is everything the final composer may use.
type ComposeInput struct {
	Question        string                  `json:"question"`
	Intent          domain.Intent           `json:"intent"`
	UsedSQL         bool                    `json:"used_sql"`
	UsedRAG         bool                    `json:"used_rag"`
	Entities        []domain.ResolvedEntity `json:"entities"`
	SQLRowsPreview  []map[string]any        `json:"sql_rows_preview"`
	ContextSnippets []domain.ContextSnippet `json:"rag_context_snippets"`
	MaxAnswerChars  int                     `json:"max_answer_chars"`
}

// AnswerComposer creates the final user-facing answer. Callers fall back to a
// deterministic answer on error.
type AnswerComposer interface {
	Compose(ctx context.Context, input ComposeInput) (string, error)
}
