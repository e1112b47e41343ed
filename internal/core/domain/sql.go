package domain

// Guardrail and execution error codes for the SQL branch. Guardrail codes are
// deterministic rejections and are never retried.
const (
	SQLErrEmpty             = "SQL_EMPTY"
	SQLErrMultiStatement    = "GUARDRAIL_MULTI_STATEMENT"
	SQLErrSelectOnly        = "GUARDRAIL_SELECT_ONLY"
	SQLErrForbiddenKeyword  = "GUARDRAIL_FORBIDDEN_KEYWORD"
	SQLErrTableRequired     = "GUARDRAIL_TABLE_REQUIRED"
	SQLErrTableNotAllowed   = "GUARDRAIL_TABLE_NOT_ALLOWED"
	SQLErrMissingEntityISIN = "GUARDRAIL_MISSING_ENTITY_ISIN"
	SQLErrISINFilterFailed  = "GUARDRAIL_ISIN_FILTER_FAILED"
	SQLErrExecutionFailed   = "SQL_EXECUTION_FAILED"
)

// IsGuardrailCode reports whether the code is a static guardrail rejection as
// opposed to a generic execution failure.
func IsGuardrailCode(code string) bool {
	switch code {
	case SQLErrMultiStatement, SQLErrSelectOnly, SQLErrForbiddenKeyword,
		SQLErrTableRequired, SQLErrTableNotAllowed,
		SQLErrMissingEntityISIN, SQLErrISINFilterFailed:
		return true
	default:
		return false
	}
}

// SQLGeneration is the text-to-SQL output before guardrail validation.
type SQLGeneration struct {
	SQL   string `json:"sql"`
	Notes string `json:"notes,omitempty"`
}

// SQLExecutionResult is the guardrail executor output. SQL holds the guarded,
// possibly rewritten statement; RowsPreview is capped independently of the
// injected hard LIMIT.
type SQLExecutionResult struct {
	SQL          string           `json:"sql,omitempty"`
	RowsPreview  []map[string]any `json:"rows_preview"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

func (r SQLExecutionResult) OK() bool {
	return r.ErrorCode == ""
}

type SQLBranchResult struct {
	SQL         string           `json:"sql,omitempty"`
	RowsPreview []map[string]any `json:"rows_preview"`
	Success     bool             `json:"success"`
}

type RAGBranchResult struct {
	Sources         []Source         `json:"sources"`
	ContextSnippets []ContextSnippet `json:"context_snippets"`
	Success         bool             `json:"success"`
}
