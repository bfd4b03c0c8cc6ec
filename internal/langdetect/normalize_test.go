package langdetect

import "testing"

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"en", "en"},
		{"EN-us", "en-us"},
		{"zh_Hant", "zh-hant"},
		{"  pt-BR  ", "pt-br"},
		{"en--us", "en-us"},
		{"", ""},
		{"   ", ""},
		{"en us", ""},
		{"x123", ""},
	}
	for _, tc := range cases {
		if got := NormalizeTag(tc.raw); got != tc.want {
			t.Fatalf("NormalizeTag(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"en-US", "en"},
		{"pt_BR", "pt"},
		{"de", "de"},
		{"", ""},
		{"!!", ""},
	}
	for _, tc := range cases {
		if got := NormalizeCode(tc.raw); got != tc.want {
			t.Fatalf("NormalizeCode(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestDetectISO6391_ShortInput(t *testing.T) {
	t.Parallel()

	if got := DetectISO6391("ok"); got != "" {
		t.Fatalf("expected empty code for short input, got %q", got)
	}
	if got := DetectISO6391("   "); got != "" {
		t.Fatalf("expected empty code for blank input, got %q", got)
	}
}
