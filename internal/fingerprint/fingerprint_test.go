package fingerprint

import (
	"strings"
	"testing"
)

func TestNew_Deterministic(t *testing.T) {
	t.Parallel()

	a := New("The quick brown fox jumps over the lazy dog")
	b := New("The quick brown fox jumps over the lazy dog")
	if a.ExactHash != b.ExactHash {
		t.Fatalf("exact hashes differ for identical input")
	}
	if !a.HasSimhash || !b.HasSimhash {
		t.Fatalf("expected simhashes to be present")
	}
	if a.Simhash != b.Simhash {
		t.Fatalf("simhashes differ for identical input")
	}
}

func TestNew_NormalizesCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	a := New("Hello   World")
	b := New("  hello world\n")
	if a.ExactHash != b.ExactHash {
		t.Fatalf("expected normalization to make hashes equal")
	}
	if a.Simhash != b.Simhash {
		t.Fatalf("expected normalization to make simhashes equal")
	}
}

func TestNew_EmptyTextHasNoSimhash(t *testing.T) {
	t.Parallel()

	fp := New("   \n\t ")
	if fp.HasSimhash {
		t.Fatalf("expected no simhash for empty text")
	}
	if fp.ExactHash == "" {
		t.Fatalf("expected an exact hash even for empty text")
	}
}

func TestHammingDistance_Bounds(t *testing.T) {
	t.Parallel()

	if got := HammingDistance(0, 0); got != 0 {
		t.Fatalf("expected distance 0, got %d", got)
	}
	if got := HammingDistance(0, ^uint64(0)); got != 64 {
		t.Fatalf("expected distance 64, got %d", got)
	}
	if got := HammingDistance(0b1010, 0b0110); got != 2 {
		t.Fatalf("expected distance 2, got %d", got)
	}
}

func TestSimilarity_Range(t *testing.T) {
	t.Parallel()

	if got := Similarity(42, 42); got != 1 {
		t.Fatalf("expected similarity 1 for equal hashes, got %f", got)
	}
	if got := Similarity(0, ^uint64(0)); got != 0 {
		t.Fatalf("expected similarity 0 for inverted hashes, got %f", got)
	}
}

func TestSimhash_SmallEditStaysSimilar(t *testing.T) {
	t.Parallel()

	words := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		words = append(words, "word"+string(rune('a'+i%26))+string(rune('a'+(i/26)%26)))
	}
	base := strings.Join(words, " ")

	edited := strings.Replace(base, words[250], "replacement", 1)

	a := New(base)
	b := New(edited)
	if a.ExactHash == b.ExactHash {
		t.Fatalf("expected exact hashes to differ after an edit")
	}

	similarity := Similarity(a.Simhash, b.Simhash)
	if similarity < 0.95 {
		t.Fatalf("expected one-word edit in 500 words to stay in the trivial band, got %f", similarity)
	}
	if similarity >= 1 {
		t.Fatalf("expected similarity below 1 after an edit, got %f", similarity)
	}
}

func TestSimhash_UnrelatedTextsDiverge(t *testing.T) {
	t.Parallel()

	a := New("orbital launch vehicle engine thrust telemetry stage separation booster recovery")
	b := New("chocolate cake recipe flour sugar butter eggs vanilla frosting oven baking")

	similarity := Similarity(a.Simhash, b.Simhash)
	if similarity > 0.85 {
		t.Fatalf("expected unrelated texts to diverge, got %f", similarity)
	}
}

func TestTokenize_DropsPunctuation(t *testing.T) {
	t.Parallel()

	tokens := tokenize("Hello, world! 42 times.")
	want := []string{"hello", "world", "42", "times"}
	if len(tokens) != len(want) {
		t.Fatalf("unexpected token count: got %v want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("unexpected token at %d: got %q want %q", i, tokens[i], want[i])
		}
	}
}
