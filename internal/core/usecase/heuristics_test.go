package usecase

import (
	"testing"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

func TestInferNonCompanyIntent(t *testing.T) {
	cases := []struct {
		question string
		want     domain.Intent
	}{
		{"Top 10 companies by dividend yield in Europe", domain.IntentEquityOnly},
		{"What is the macro outlook for 2026?", domain.IntentMacroOnly},
		{"Rank sectors by target price given the inflation backdrop", domain.IntentHybrid},
		{"Tell me something interesting", domain.IntentUnknown},
		{"Screen for the highest PE ratio stocks", domain.IntentEquityOnly},
		{"How will central bank policy affect GDP?", domain.IntentMacroOnly},
	}
	for _, tc := range cases {
		if got := inferNonCompanyIntent(tc.question); got != tc.want {
			t.Fatalf("inferNonCompanyIntent(%q) = %s, want %s", tc.question, got, tc.want)
		}
	}
}

func TestLooksCompanySpecific(t *testing.T) {
	if !looksCompanySpecific("Which ISIN does this match?", nil) {
		t.Fatalf("isin keyword should mark question company-specific")
	}
	if !looksCompanySpecific("anything", []domain.ResolvedEntity{{ISIN: "US0378331005"}}) {
		t.Fatalf("resolved entities should mark question company-specific")
	}
	if looksCompanySpecific("What is the inflation outlook?", nil) {
		t.Fatalf("macro question should not be company-specific")
	}
}
