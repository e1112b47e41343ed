package usecase

import (
	"sort"
	"strings"
)

// indelRatio is a 0-100 similarity over insert/delete edit distance:
// 200*LCS(a,b)/(len(a)+len(b)). Identical strings score 100.
func indelRatio(a, b string) float64 {
	if a == b {
		return 100
	}
	ra := []rune(a)
	rb := []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	return 200 * float64(lcsLength(ra, rb)) / float64(total)
}

func lcsLength(a, b []rune) int {
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// tokenSetRatio scores order-independent token overlap on a 0-100 scale.
// The shared token prefix makes any string pair with equal token sets score
// 100 regardless of ordering or duplication.
func tokenSetRatio(a, b string) float64 {
	tokensA := uniqueSortedTokens(a)
	tokensB := uniqueSortedTokens(b)
	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 100
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	i, j := 0, 0
	for i < len(tokensA) && j < len(tokensB) {
		switch {
		case tokensA[i] == tokensB[j]:
			common = append(common, tokensA[i])
			i++
			j++
		case tokensA[i] < tokensB[j]:
			onlyA = append(onlyA, tokensA[i])
			i++
		default:
			onlyB = append(onlyB, tokensB[j])
			j++
		}
	}
	onlyA = append(onlyA, tokensA[i:]...)
	onlyB = append(onlyB, tokensB[j:]...)

	base := strings.Join(common, " ")
	combinedA := joinNonEmpty(base, strings.Join(onlyA, " "))
	combinedB := joinNonEmpty(base, strings.Join(onlyB, " "))

	best := indelRatio(base, combinedA)
	if r := indelRatio(base, combinedB); r > best {
		best = r
	}
	if r := indelRatio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

func uniqueSortedTokens(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
