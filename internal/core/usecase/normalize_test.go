package usecase

import "testing"

func TestNormalizeMatchText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Apple   Inc. ", "apple inc"},
		{"Procter & Gamble", "procter and gamble"},
		{"Møller - Mærsk", "m ller m rsk"},
		{"TOTAL-ENERGIES, SE;", "total energies se"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		got := normalizeMatchText(tc.in)
		if got != tc.want {
			t.Fatalf("normalizeMatchText(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if again := normalizeMatchText(got); again != got {
			t.Fatalf("normalizeMatchText not idempotent for %q: %q -> %q", tc.in, got, again)
		}
	}
}

func TestNormalizeCompanyNameStripsLegalSuffixes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Apple Inc.", "apple"},
		{"The Coca-Cola Company Corp", "coca cola company"},
		{"Siemens AG", "siemens"},
		{"Koninklijke Philips N.V.", "koninklijke philips"},
		{"Ferrari S.p.A.", "ferrari"},
		{"Banco Santander S.A.", "banco santander"},
		{"Shell plc", "shell"},
		{"Inc", ""},
	}
	for _, tc := range cases {
		if got := normalizeCompanyName(tc.in, true); got != tc.want {
			t.Fatalf("normalizeCompanyName(%q, true) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeCompanyNameKeepsLeadingTheForQuestions(t *testing.T) {
	got := normalizeCompanyName("The outlook for the market?", false)
	if got != "the outlook for the market" {
		t.Fatalf("unexpected question normalization: %q", got)
	}
}

func TestStripLegalSuffixTokensIsRepeated(t *testing.T) {
	if got := stripLegalSuffixTokens("foo holdings s p a inc"); got != "foo holdings" {
		t.Fatalf("expected repeated suffix stripping, got %q", got)
	}
}
