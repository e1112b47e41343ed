package usecase

import (
	"regexp"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

var (
	companyMentionPattern = regexp.MustCompile(`(?i)\b(company|ticker|isin)\b`)

	sqlIntentPattern = regexp.MustCompile(
		`(?i)\b(top|highest|lowest|rank(?:ing)?|best|worst|screen(?:ing)?|filter|region|sector|industry|market cap|dividend yield|target price|p/e|pe ratio)\b`,
	)
	macroIntentPattern = regexp.MustCompile(
		`(?i)\b(macro|macroeconomic|inflation|interest rates?|recession|gdp|central bank|policy|economic outlook|macro outlook|geopolitical)\b`,
	)
)

// looksCompanySpecific is the router safety net for classifier fallbacks: the
// question mentions companies explicitly or the resolver already found some.
func looksCompanySpecific(question string, entities []domain.ResolvedEntity) bool {
	if len(entities) > 0 {
		return true
	}
	return companyMentionPattern.MatchString(question)
}

// inferNonCompanyIntent guesses a non-company branch from surface keywords.
// It returns IntentUnknown when neither vocabulary matches.
func inferNonCompanyIntent(question string) domain.Intent {
	wantsSQL := sqlIntentPattern.MatchString(question)
	wantsMacro := macroIntentPattern.MatchString(question)
	switch {
	case wantsSQL && wantsMacro:
		return domain.IntentHybrid
	case wantsSQL:
		return domain.IntentEquityOnly
	case wantsMacro:
		return domain.IntentMacroOnly
	default:
		return domain.IntentUnknown
	}
}
