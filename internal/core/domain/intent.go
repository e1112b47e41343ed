package domain

// Intent is the coarse routing decision for a question.
type Intent string

const (
	IntentEquityOnly Intent = "equity_only"
	IntentMacroOnly  Intent = "macro_only"
	IntentHybrid     Intent = "hybrid"
	IntentUnknown    Intent = "unknown"
)

// IntentDecision is the classifier output. Confidence 0.0 with IntentUnknown
// marks a classifier fallback, which arms the orchestrator's local safety net.
type IntentDecision struct {
	Intent          Intent  `json:"intent"`
	RawIntent       Intent  `json:"raw_intent"`
	CompanySpecific bool    `json:"company_specific"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason"`
}

// FallbackIntentDecision is the deterministic decision used when the
// classifier is unavailable or returns an unusable result.
func FallbackIntentDecision(reason string) IntentDecision {
	return IntentDecision{
		Intent:          IntentUnknown,
		RawIntent:       IntentUnknown,
		CompanySpecific: false,
		Confidence:      0.0,
		Reason:          reason,
	}
}

// BranchUsage maps an intent to (use_sql, use_rag). Unknown intent runs both.
func BranchUsage(intent Intent) (useSQL, useRAG bool) {
	switch intent {
	case IntentEquityOnly:
		return true, false
	case IntentMacroOnly:
		return false, true
	case IntentHybrid:
		return true, true
	default:
		return true, true
	}
}
