package domain

// FindingCode identifies a structured pipeline diagnostic. Findings never
// abort a request; they are appended to the per-request ordered list.
type FindingCode string

const (
	FindingEntityNotFound                  FindingCode = "ENTITY_NOT_FOUND"
	FindingRejectedCandidatesDebug         FindingCode = "REJECTED_CANDIDATES_DEBUG"
	FindingNonCompanyUnknownDefaultedMacro FindingCode = "NON_COMPANY_UNKNOWN_DEFAULTED_TO_MACRO"
	FindingNonCompanyUnknownByHeuristic    FindingCode = "NON_COMPANY_UNKNOWN_DEFAULTED_BY_HEURISTIC"
	FindingNonCompanyLowConfidenceOverride FindingCode = "NON_COMPANY_LOW_CONFIDENCE_OVERRIDDEN_BY_HEURISTIC"
	FindingRouterFallbackCompanySpecific   FindingCode = "ROUTER_FALLBACK_COMPANY_SPECIFIC_HEURISTIC"
	FindingSQLGenerationFailed             FindingCode = "SQL_GENERATION_FAILED"
	FindingSQLGuardrailBlocked             FindingCode = "SQL_GUARDRAIL_BLOCKED"
	FindingSQLExecutionFailed              FindingCode = "SQL_EXECUTION_FAILED"
	FindingRAGRetrievalFailed              FindingCode = "RAG_RETRIEVAL_FAILED"
	FindingRAGNoRelevantChunks             FindingCode = "RAG_NO_RELEVANT_CHUNKS"
	FindingComposerFallback                FindingCode = "FINAL_COMPOSER_FALLBACK"
	FindingComposerDebugFlags              FindingCode = "COMPOSER_DEBUG_FLAGS"
)

// Finding is one ordered diagnostic record.
type Finding struct {
	Code    FindingCode `json:"type"`
	Message string      `json:"message"`
	Details any         `json:"details,omitempty"`
}

// AskState is the per-request mutable record threaded through every pipeline
// stage. It is created per request and discarded after the response is built.
type AskState struct {
	Question string

	Intent           Intent
	RawIntent        Intent
	CompanySpecific  bool
	IntentConfidence float64

	Entities []ResolvedEntity

	UsedSQL bool
	UsedRAG bool

	SQLResult SQLBranchResult
	RAGResult RAGBranchResult

	Answer   string
	Findings []Finding
	Debug    map[string]any
}

// NewAskState initializes the state machine record for one question.
func NewAskState(question string) *AskState {
	return &AskState{
		Question:  question,
		Intent:    IntentUnknown,
		RawIntent: IntentUnknown,
		Debug:     map[string]any{},
	}
}

// AddFinding appends a diagnostic in stage order.
func (s *AskState) AddFinding(code FindingCode, message string, details any) {
	s.Findings = append(s.Findings, Finding{Code: code, Message: message, Details: details})
}

// PrependFinding records an orchestrator-level override ahead of the stage
// diagnostics already collected.
func (s *AskState) PrependFinding(code FindingCode, message string, details any) {
	s.Findings = append([]Finding{{Code: code, Message: message, Details: details}}, s.Findings...)
}

// AskResult is the externally visible pipeline outcome.
type AskResult struct {
	Question         string           `json:"question"`
	Intent           Intent           `json:"intent"`
	RawIntent        Intent           `json:"raw_intent"`
	CompanySpecific  bool             `json:"company_specific"`
	IntentConfidence float64          `json:"intent_confidence"`
	Entities         []ResolvedEntity `json:"entities"`
	UsedSQL          bool             `json:"used_sql"`
	UsedRAG          bool             `json:"used_rag"`
	SQL              string           `json:"sql,omitempty"`
	SQLRowsPreview   []map[string]any `json:"sql_rows_preview"`
	Answer           string           `json:"answer"`
	Sources          []Source         `json:"sources"`
	Findings         []Finding        `json:"errors"`
	Debug            map[string]any   `json:"debug,omitempty"`
}
