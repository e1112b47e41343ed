package usecase

import "testing"

func TestIndelRatio(t *testing.T) {
	if got := indelRatio("apple", "apple"); got != 100 {
		t.Fatalf("identical strings should score 100, got %v", got)
	}
	if got := indelRatio("", ""); got != 100 {
		t.Fatalf("two empty strings should score 100, got %v", got)
	}
	if got := indelRatio("apple", ""); got != 0 {
		t.Fatalf("empty versus non-empty should score 0, got %v", got)
	}

	// LCS("microsfot", "microsoft") = 8, total length 18.
	got := indelRatio("microsfot", "microsoft")
	want := 200.0 * 8 / 18
	if got < want-0.001 || got > want+0.001 {
		t.Fatalf("indelRatio transposition = %v, want %v", got, want)
	}
}

func TestTokenSetRatioOrderIndependent(t *testing.T) {
	if got := tokenSetRatio("gamble and procter", "procter and gamble"); got != 100 {
		t.Fatalf("reordered token sets should score 100, got %v", got)
	}
	if got := tokenSetRatio("apple apple apple", "apple"); got != 100 {
		t.Fatalf("duplicated tokens should not lower the score, got %v", got)
	}
}

func TestTokenSetRatioSubset(t *testing.T) {
	subset := tokenSetRatio("alpha industries", "alpha industries group")
	if subset != 100 {
		t.Fatalf("token subset should score 100, got %v", subset)
	}

	partial := tokenSetRatio("alpha industries", "beta industries")
	if partial >= subset || partial <= 0 {
		t.Fatalf("partial overlap should score between 0 and 100, got %v", partial)
	}
}

func TestTokenSetRatioDisjoint(t *testing.T) {
	got := tokenSetRatio("apple", "zzzz")
	if got > 25 {
		t.Fatalf("disjoint strings should score low, got %v", got)
	}
}
