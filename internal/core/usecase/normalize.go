package usecase

import (
	"strings"
	"unicode"
)

// Legal-form suffixes stripped from the tail of normalized company names.
// Multi-token patterns cover forms that normalization split on punctuation
// ("s.a." -> "s a").
var legalSuffixPatterns = [][]string{
	{"inc"},
	{"corporation"},
	{"corp"},
	{"ltd"},
	{"plc"},
	{"sa"},
	{"s", "a"},
	{"ag"},
	{"nv"},
	{"n", "v"},
	{"se"},
	{"spa"},
	{"s", "p", "a"},
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeMatchText lowercases, maps "&" to "and", replaces punctuation with
// spaces, drops everything outside [a-z0-9 ], and collapses whitespace. The
// transform is idempotent.
func normalizeMatchText(value string) string {
	lowered := strings.ToLower(value)
	lowered = strings.ReplaceAll(lowered, "&", " and ")

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return collapseSpaces(b.String())
}

func stripLegalSuffixTokens(value string) string {
	tokens := strings.Split(value, " ")
	for len(tokens) > 0 {
		stripped := false
		for _, pattern := range legalSuffixPatterns {
			n := len(pattern)
			if len(tokens) < n {
				continue
			}
			match := true
			for i := 0; i < n; i++ {
				if tokens[len(tokens)-n+i] != pattern[i] {
					match = false
					break
				}
			}
			if match {
				tokens = tokens[:len(tokens)-n]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return strings.TrimSpace(strings.Join(tokens, " "))
}

// normalizeCompanyName builds the canonical alias form of a company name.
// removeThe is disabled when normalizing whole questions so that leading
// articles stay as word boundaries.
func normalizeCompanyName(value string, removeThe bool) string {
	normalized := normalizeMatchText(value)
	if removeThe {
		normalized = strings.TrimSpace(strings.TrimPrefix(normalized, "the "))
	}
	if normalized != "" {
		normalized = stripLegalSuffixTokens(normalized)
	}
	return normalized
}

func isUpperAlnum(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func tokenizeWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
