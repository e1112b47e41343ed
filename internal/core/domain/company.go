package domain

// MatchMethod identifies which resolver stage produced an entity match.
type MatchMethod string

const (
	MatchISINExact   MatchMethod = "isin_exact"
	MatchTickerExact MatchMethod = "ticker_exact"
	MatchAliasExact  MatchMethod = "alias_exact"
	MatchFuzzyName   MatchMethod = "fuzzy_name"
)

// IsExact reports whether the method is one of the exact-match stages.
// An exact match is never displaced by a fuzzy one.
func (m MatchMethod) IsExact() bool {
	switch m {
	case MatchISINExact, MatchTickerExact, MatchAliasExact:
		return true
	default:
		return false
	}
}

// CompanyRecord is one row of the equities catalog, loaded once at startup
// and immutable for the process lifetime.
type CompanyRecord struct {
	ISIN        string `json:"isin"`
	CompanyName string `json:"company_name"`
	Ticker      string `json:"ticker,omitempty"`
}

// AliasRow is one row of the company_aliases table.
type AliasRow struct {
	AliasNormalized string
	ISIN            string
}

type ResolvedEntity struct {
	ISIN        string      `json:"isin"`
	CompanyName string      `json:"company_name"`
	Ticker      string      `json:"ticker,omitempty"`
	Confidence  float64     `json:"confidence"`
	MatchedBy   MatchMethod `json:"matched_by"`
}

// RejectedCandidate is a diagnostic record for a match attempt that was not
// accepted. It is never surfaced as an entity.
type RejectedCandidate struct {
	Method      string  `json:"method"`
	Candidate   string  `json:"candidate"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
	ISIN        string  `json:"isin,omitempty"`
	CompanyName string  `json:"company_name,omitempty"`
	Ticker      string  `json:"ticker,omitempty"`
}

type EntityResolution struct {
	Entities []ResolvedEntity    `json:"entities"`
	Rejected []RejectedCandidate `json:"rejected_candidates"`
}
