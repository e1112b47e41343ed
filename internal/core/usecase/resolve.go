package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

var (
	isinTokenPattern   = regexp.MustCompile(`[A-Z]{2}[A-Z0-9]{10}`)
	tickerTokenPattern = regexp.MustCompile(`^[A-Z]{2,6}(?:\.[A-Z])?`)
	fuzzySplitPattern  = regexp.MustCompile(`\b(?:and|or|vs|versus|with|against|compared to)\b|[,;:/]`)
)

// Aliases that are single common words never resolve on their own; they would
// match almost every question about markets.
var singleTokenAliasBlocklist = map[string]struct{}{
	"what": {}, "which": {}, "who": {}, "when": {}, "where": {}, "why": {},
	"how": {}, "is": {}, "are": {}, "for": {}, "about": {}, "with": {},
	"vs": {}, "versus": {}, "compare": {}, "comparing": {}, "between": {},
	"and": {}, "or": {}, "to": {}, "in": {}, "of": {}, "on": {},
	"target": {}, "price": {}, "yield": {}, "dividend": {}, "ratio": {},
	"market": {}, "inflation": {}, "growth": {}, "stock": {}, "stocks": {},
	"trend": {}, "trends": {}, "macro": {}, "risk": {}, "risks": {},
	"outlook": {}, "company": {}, "companies": {}, "sector": {}, "sectors": {},
	"valuation": {}, "valuations": {}, "current": {}, "does": {}, "do": {},
	"can": {}, "should": {}, "could": {}, "would": {}, "tell": {}, "show": {},
	"give": {}, "list": {},
}

type ResolverConfig struct {
	ConfidenceThreshold float64
	FuzzyMinScore       float64
	AmbiguityMargin     float64
	MaxEntities         int
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		ConfidenceThreshold: 0.80,
		FuzzyMinScore:       80,
		AmbiguityMargin:     0.05,
		MaxEntities:         5,
	}
}

// EntityResolver maps question text to canonical company records. The catalog
// indexes are built once and are safe for concurrent reads.
type EntityResolver struct {
	cfg ResolverConfig

	byISIN           map[string]domain.CompanyRecord
	byTicker         map[string][]domain.CompanyRecord
	aliasToCompanies map[string][]domain.CompanyRecord
	aliasesForExact  []string
	aliasesForFuzzy  []string
}

// NewEntityResolver compiles the alias, ticker, and isin indexes from the
// catalog snapshot. An empty catalog yields a resolver that accepts nothing.
func NewEntityResolver(companies []domain.CompanyRecord, aliases []domain.AliasRow, cfg ResolverConfig) *EntityResolver {
	if cfg.MaxEntities <= 0 {
		cfg.MaxEntities = DefaultResolverConfig().MaxEntities
	}

	r := &EntityResolver{
		cfg:              cfg,
		byISIN:           map[string]domain.CompanyRecord{},
		byTicker:         map[string][]domain.CompanyRecord{},
		aliasToCompanies: map[string][]domain.CompanyRecord{},
	}

	for _, row := range companies {
		isin := strings.ToUpper(strings.TrimSpace(row.ISIN))
		name := collapseSpaces(row.CompanyName)
		if isin == "" || name == "" {
			continue
		}
		record := domain.CompanyRecord{
			ISIN:        isin,
			CompanyName: name,
			Ticker:      collapseSpaces(row.Ticker),
		}
		r.byISIN[isin] = record
		for _, variant := range tickerVariants(record.Ticker) {
			r.byTicker[variant] = append(r.byTicker[variant], record)
		}
		if base := normalizeCompanyName(name, true); base != "" {
			r.aliasToCompanies[base] = append(r.aliasToCompanies[base], record)
		}
	}

	for _, row := range aliases {
		alias := collapseSpaces(row.AliasNormalized)
		isin := strings.ToUpper(strings.TrimSpace(row.ISIN))
		record, ok := r.byISIN[isin]
		if alias == "" || !ok {
			continue
		}
		r.aliasToCompanies[alias] = append(r.aliasToCompanies[alias], record)
	}

	for alias, records := range r.aliasToCompanies {
		r.aliasToCompanies[alias] = dedupeByISIN(records)
	}

	filtered := make([]string, 0, len(r.aliasToCompanies))
	for alias := range r.aliasToCompanies {
		if !strings.Contains(alias, " ") {
			if _, blocked := singleTokenAliasBlocklist[alias]; blocked {
				continue
			}
		}
		filtered = append(filtered, alias)
	}
	sort.Strings(filtered)

	r.aliasesForFuzzy = filtered
	r.aliasesForExact = make([]string, len(filtered))
	copy(r.aliasesForExact, filtered)
	// Longest, most specific alias must win the exact containment scan first.
	sort.SliceStable(r.aliasesForExact, func(i, j int) bool {
		a, b := r.aliasesForExact[i], r.aliasesForExact[j]
		at, bt := strings.Count(a, " "), strings.Count(b, " ")
		if at != bt {
			return at > bt
		}
		return len(a) > len(b)
	})

	return r
}

func (r *EntityResolver) CompanyCount() int {
	return len(r.byISIN)
}

// Resolve runs the fixed four-stage pipeline: isin exact, ticker exact, alias
// exact, fuzzy name. Accepted entities are keyed by isin; higher confidence
// wins except that a fuzzy match never displaces an exact-method match.
func (r *EntityResolver) Resolve(question string) domain.EntityResolution {
	state := &resolveState{accepted: map[string]domain.ResolvedEntity{}}

	r.resolveByISIN(question, state)
	r.resolveByTicker(question, state)
	r.resolveByAliasExact(question, state)
	r.resolveByFuzzy(question, state)

	entities := make([]domain.ResolvedEntity, 0, len(state.acceptedOrder))
	for _, isin := range state.acceptedOrder {
		entities = append(entities, state.accepted[isin])
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Confidence > entities[j].Confidence
	})

	if len(entities) > r.cfg.MaxEntities {
		for _, dropped := range entities[r.cfg.MaxEntities:] {
			state.rejected = append(state.rejected, domain.RejectedCandidate{
				Method:      "cap_limit",
				Candidate:   dropped.CompanyName,
				Reason:      fmt.Sprintf("Dropped due to max_entities=%d.", r.cfg.MaxEntities),
				Confidence:  dropped.Confidence,
				ISIN:        dropped.ISIN,
				CompanyName: dropped.CompanyName,
				Ticker:      dropped.Ticker,
			})
		}
		entities = entities[:r.cfg.MaxEntities]
	}

	return domain.EntityResolution{Entities: entities, Rejected: state.rejected}
}

type resolveState struct {
	accepted      map[string]domain.ResolvedEntity
	acceptedOrder []string
	rejected      []domain.RejectedCandidate
}

func (s *resolveState) reject(c domain.RejectedCandidate) {
	s.rejected = append(s.rejected, c)
}

func (r *EntityResolver) addEntity(s *resolveState, record domain.CompanyRecord, confidence float64, matchedBy domain.MatchMethod) {
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.0 {
		confidence = 0.0
	}
	if confidence < r.cfg.ConfidenceThreshold {
		return
	}

	current, exists := s.accepted[record.ISIN]
	if exists && current.MatchedBy.IsExact() && matchedBy == domain.MatchFuzzyName {
		return
	}
	if exists && confidence <= current.Confidence {
		return
	}
	if !exists {
		s.acceptedOrder = append(s.acceptedOrder, record.ISIN)
	}
	s.accepted[record.ISIN] = domain.ResolvedEntity{
		ISIN:        record.ISIN,
		CompanyName: record.CompanyName,
		Ticker:      record.Ticker,
		Confidence:  confidence,
		MatchedBy:   matchedBy,
	}
}

func (r *EntityResolver) resolveByISIN(question string, s *resolveState) {
	upper := strings.ToUpper(question)
	for _, isin := range findBoundedMatches(upper, isinTokenPattern) {
		record, ok := r.byISIN[isin]
		if !ok {
			s.reject(domain.RejectedCandidate{
				Method:     string(domain.MatchISINExact),
				Candidate:  isin,
				Reason:     "ISIN not found in equities.",
				Confidence: 0.0,
			})
			continue
		}
		r.addEntity(s, record, 1.0, domain.MatchISINExact)
	}
}

func (r *EntityResolver) resolveByTicker(question string, s *resolveState) {
	for _, symbol := range findTickerTokens(question) {
		if len(strings.ReplaceAll(symbol, ".", "")) < 2 {
			continue
		}
		candidates := r.byTicker[symbol]
		if len(candidates) == 0 {
			continue
		}
		if len(candidates) > 1 {
			s.reject(domain.RejectedCandidate{
				Method:     string(domain.MatchTickerExact),
				Candidate:  symbol,
				Reason:     "Ticker matched multiple companies.",
				Confidence: 0.0,
			})
			continue
		}
		r.addEntity(s, candidates[0], 0.99, domain.MatchTickerExact)
	}
}

func (r *EntityResolver) resolveByAliasExact(question string, s *resolveState) {
	normalized := " " + normalizeCompanyName(question, false) + " "
	for _, alias := range r.aliasesForExact {
		if alias == "" || !strings.Contains(normalized, " "+alias+" ") {
			continue
		}
		candidates := r.aliasToCompanies[alias]
		switch {
		case len(candidates) == 1:
			r.addEntity(s, candidates[0], 0.90, domain.MatchAliasExact)
		case len(candidates) > 1:
			s.reject(domain.RejectedCandidate{
				Method:     string(domain.MatchAliasExact),
				Candidate:  alias,
				Reason:     "Alias matched multiple companies.",
				Confidence: 0.0,
			})
		}
	}
}

func (r *EntityResolver) resolveByFuzzy(question string, s *resolveState) {
	if len(r.aliasesForFuzzy) == 0 {
		return
	}

	normalized := normalizeCompanyName(question, false)
	queries := buildFuzzyQueries(normalized, len(s.accepted) == 0)

	for _, query := range queries {
		candidates := r.topFuzzyCandidates(query, 8)

		type scored struct {
			record domain.CompanyRecord
			score  float64
		}
		byISIN := map[string]scored{}
		var order []string
		for _, c := range candidates {
			if c.score < r.cfg.FuzzyMinScore {
				continue
			}
			for _, company := range r.aliasToCompanies[c.alias] {
				current, ok := byISIN[company.ISIN]
				if !ok {
					order = append(order, company.ISIN)
				}
				if !ok || c.score > current.score {
					byISIN[company.ISIN] = scored{record: company, score: c.score}
				}
			}
		}
		if len(byISIN) == 0 {
			continue
		}

		ranked := make([]scored, 0, len(order))
		for _, isin := range order {
			ranked = append(ranked, byISIN[isin])
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].score > ranked[j].score
		})

		top := ranked[0]
		topConfidence := top.score / 100.0

		if len(ranked) > 1 && (top.score-ranked[1].score) < r.cfg.AmbiguityMargin*100 {
			_, topAccepted := s.accepted[top.record.ISIN]
			_, secondAccepted := s.accepted[ranked[1].record.ISIN]
			if topAccepted && secondAccepted {
				continue
			}
			s.reject(domain.RejectedCandidate{
				Method:    string(domain.MatchFuzzyName),
				Candidate: query,
				Reason: fmt.Sprintf(
					"Ambiguous fuzzy match: top1=%.1f, top2=%.1f, required_margin=%.2f",
					top.score, ranked[1].score, r.cfg.AmbiguityMargin,
				),
				Confidence:  topConfidence,
				ISIN:        top.record.ISIN,
				CompanyName: top.record.CompanyName,
				Ticker:      top.record.Ticker,
			})
			continue
		}

		if topConfidence < r.cfg.ConfidenceThreshold {
			s.reject(domain.RejectedCandidate{
				Method:      string(domain.MatchFuzzyName),
				Candidate:   query,
				Reason:      fmt.Sprintf("Fuzzy confidence below threshold %.2f.", r.cfg.ConfidenceThreshold),
				Confidence:  topConfidence,
				ISIN:        top.record.ISIN,
				CompanyName: top.record.CompanyName,
				Ticker:      top.record.Ticker,
			})
			continue
		}

		r.addEntity(s, top.record, topConfidence, domain.MatchFuzzyName)
	}
}

type fuzzyCandidate struct {
	alias string
	score float64
}

func (r *EntityResolver) topFuzzyCandidates(query string, limit int) []fuzzyCandidate {
	scoredAliases := make([]fuzzyCandidate, 0, len(r.aliasesForFuzzy))
	for _, alias := range r.aliasesForFuzzy {
		scoredAliases = append(scoredAliases, fuzzyCandidate{
			alias: alias,
			score: tokenSetRatio(query, alias),
		})
	}
	sort.SliceStable(scoredAliases, func(i, j int) bool {
		return scoredAliases[i].score > scoredAliases[j].score
	})
	if len(scoredAliases) > limit {
		scoredAliases = scoredAliases[:limit]
	}
	return scoredAliases
}

// buildFuzzyQueries splits the normalized question on conjunction boundaries
// into 1-10 candidate sub-queries. The whole question is included only when
// nothing has been accepted by the exact stages.
func buildFuzzyQueries(normalizedQuestion string, includeFullQuestion bool) []string {
	if normalizedQuestion == "" {
		return nil
	}
	var queries []string
	if includeFullQuestion {
		queries = append(queries, normalizedQuestion)
	}
	for _, segment := range fuzzySplitPattern.Split(normalizedQuestion, -1) {
		clean := collapseSpaces(segment)
		if len(clean) < 3 {
			continue
		}
		queries = append(queries, clean)
	}

	seen := map[string]struct{}{}
	unique := make([]string, 0, len(queries))
	for _, q := range queries {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		unique = append(unique, q)
	}
	if len(unique) > 10 {
		unique = unique[:10]
	}
	return unique
}

// findBoundedMatches returns pattern matches that are not touching an
// uppercase-alphanumeric neighbour, mirroring the lookaround boundaries the
// token shapes require.
func findBoundedMatches(s string, re *regexp.Regexp) []string {
	var out []string
	for _, loc := range re.FindAllStringIndex(s, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isUpperAlnum(rune(s[start-1])) {
			continue
		}
		if end < len(s) && isUpperAlnum(rune(s[end])) {
			continue
		}
		out = append(out, s[start:end])
	}
	return out
}

// findTickerTokens scans for ticker-shaped symbols. A match touching an
// uppercase-alphanumeric neighbour is retried without its optional ".X"
// suffix, so "VOW.DE" yields "VOW" and "DE" rather than nothing.
func findTickerTokens(s string) []string {
	var out []string
	for i := 0; i < len(s); {
		if i > 0 && isUpperAlnum(rune(s[i-1])) {
			i++
			continue
		}
		match := tickerTokenPattern.FindString(s[i:])
		if match == "" {
			i++
			continue
		}
		end := i + len(match)
		if end < len(s) && isUpperAlnum(rune(s[end])) {
			if dot := strings.IndexByte(match, '.'); dot > 0 {
				match = match[:dot]
				end = i + len(match)
			} else {
				i++
				continue
			}
		}
		out = append(out, match)
		i = end
	}
	return out
}

func tickerVariants(rawTicker string) []string {
	cleaned := collapseSpaces(rawTicker)
	if cleaned == "" {
		return nil
	}
	variants := []string{cleaned}
	firstToken := strings.Split(cleaned, " ")[0]
	if firstToken != cleaned {
		variants = append(variants, firstToken)
	}
	noSuffix := strings.Split(firstToken, ".")[0]
	if noSuffix != firstToken && noSuffix != cleaned && noSuffix != "" {
		variants = append(variants, noSuffix)
	}
	return variants
}

func dedupeByISIN(records []domain.CompanyRecord) []domain.CompanyRecord {
	seen := map[string]struct{}{}
	out := make([]domain.CompanyRecord, 0, len(records))
	for _, record := range records {
		if _, ok := seen[record.ISIN]; ok {
			continue
		}
		seen[record.ISIN] = struct{}{}
		out = append(out, record)
	}
	return out
}
