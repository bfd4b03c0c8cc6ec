package embedding

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"scaled", []float64{1, 1}, []float64{3, 3}, 1},
		{"mismatched lengths", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tc := range cases {
		got := CosineSimilarity(tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestVectorLiteralRoundtrip(t *testing.T) {
	t.Parallel()

	original := []float64{0.25, -1.5, 3}
	literal, err := ToVectorLiteral(original, 3)
	if err != nil {
		t.Fatalf("expected literal, got %v", err)
	}
	if literal != "[0.25,-1.5,3]" {
		t.Fatalf("unexpected literal: %q", literal)
	}

	parsed, err := ParseVectorLiteral(literal)
	if err != nil {
		t.Fatalf("expected parse, got %v", err)
	}
	if len(parsed) != len(original) {
		t.Fatalf("length mismatch: %d vs %d", len(parsed), len(original))
	}
	for i := range parsed {
		if parsed[i] != original[i] {
			t.Fatalf("component %d mismatch: %v vs %v", i, parsed[i], original[i])
		}
	}
}

func TestToVectorLiteral_Rejections(t *testing.T) {
	t.Parallel()

	if _, err := ToVectorLiteral([]float64{1, 2}, 3); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
	if _, err := ToVectorLiteral([]float64{1, math.NaN()}, 2); err == nil {
		t.Fatalf("expected NaN rejection")
	}
	if _, err := ToVectorLiteral([]float64{math.Inf(1)}, 1); err == nil {
		t.Fatalf("expected Inf rejection")
	}
}

func TestParseVectorLiteral_Malformed(t *testing.T) {
	t.Parallel()

	for _, literal := range []string{"", "   ", "[]", "[1,abc]"} {
		if _, err := ParseVectorLiteral(literal); err == nil {
			t.Fatalf("expected error for %q", literal)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"", DefaultEndpoint},
		{"http://embed.local", "http://embed.local/embed"},
		{"http://embed.local/", "http://embed.local/embed"},
		{"http://embed.local/v1/embeddings", "http://embed.local/v1/embeddings"},
		{"http://embed.local/custom", "http://embed.local/custom"},
	}
	for _, tc := range cases {
		if got := normalizeEndpoint(tc.raw); got != tc.want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestRegistry_ResolveAndDefault(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("Local")
	if err := registry.Register(NewLocalProvider(8)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	provider, err := registry.Provider("")
	if err != nil {
		t.Fatalf("expected default resolution, got %v", err)
	}
	if provider.Name() != "local" {
		t.Fatalf("unexpected provider: %q", provider.Name())
	}

	if _, err := registry.Provider("missing"); err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
}

func TestRegistry_RejectsNilProvider(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("")
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := registry.Provider(""); err == nil {
		t.Fatalf("expected error when no providers are registered")
	}
}

func TestLocalProvider_Deterministic(t *testing.T) {
	t.Parallel()

	provider := NewLocalProvider(16)
	first, err := provider.Embed(context.Background(), "alpha beta gamma")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	second, err := provider.Embed(context.Background(), "alpha beta gamma")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if CosineSimilarity(first, second) != 1 {
		t.Fatalf("expected identical vectors for identical input")
	}
	if len(first) != 16 {
		t.Fatalf("unexpected dimensions: %d", len(first))
	}

	if _, err := provider.Embed(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestHTTPProvider_Embed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPOptions{
		Endpoint:   server.URL + "/embed",
		Dimensions: 3,
	})
	vector, err := provider.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vector) != 3 || vector[1] != 0.2 {
		t.Fatalf("unexpected vector: %v", vector)
	}
}

func TestHTTPProvider_OpenAIShape(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPOptions{
		Endpoint:   server.URL + "/v1/embeddings",
		Dimensions: 2,
	})
	vector, err := provider.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vector) != 2 || vector[0] != 1 {
		t.Fatalf("unexpected vector: %v", vector)
	}
}

func TestHTTPProvider_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPOptions{Endpoint: server.URL + "/embed", Dimensions: 2})
	if _, err := provider.Embed(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}
