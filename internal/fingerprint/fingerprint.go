// Package fingerprint computes exact and locality-sensitive hashes over
// normalized content. The exact hash answers "is this byte-identical"; the
// simhash answers "how far apart are these texts" via Hamming distance.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"

	"horse.fit/driftwatch/internal/normalize"
)

const simhashBits = 64

// Fingerprint is the immutable hash pair computed once per fetch.
type Fingerprint struct {
	ExactHash string
	Simhash   uint64
	// HasSimhash is false when the text produced no tokens; callers must
	// then fall back to exact-hash comparison only.
	HasSimhash bool
}

// New fingerprints normalized text. The exact hash is a SHA-256 digest of
// the case-folded, whitespace-collapsed text; the simhash is a 64-bit
// bit-voting hash over FNV-64a token hashes.
func New(normalizedText string) Fingerprint {
	canonical := normalize.Text(normalizedText)
	digest := sha256.Sum256([]byte(canonical))

	fp := Fingerprint{
		ExactHash: hex.EncodeToString(digest[:]),
	}
	if v, ok := simhash64(canonical); ok {
		fp.Simhash = v
		fp.HasSimhash = true
	}
	return fp
}

// HammingDistance counts differing bits between two simhashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similarity maps Hamming distance onto [0,1]; 1 means identical bit
// patterns, 0.5 is what two unrelated texts converge to.
func Similarity(a, b uint64) float64 {
	return 1 - float64(HammingDistance(a, b))/float64(simhashBits)
}

// simhash64 is the classic weighted bit-voting construction: every token
// votes +1/-1 per bit position of its 64-bit hash, and the output bit is
// set when the vote sum is positive.
func simhash64(text string) (uint64, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, false
	}

	var bitWeights [simhashBits]int
	for _, token := range tokens {
		h := hashToken64(token)
		for bit := 0; bit < simhashBits; bit++ {
			mask := uint64(1) << bit
			if h&mask != 0 {
				bitWeights[bit]++
			} else {
				bitWeights[bit]--
			}
		}
	}

	var result uint64
	for bit := 0; bit < simhashBits; bit++ {
		if bitWeights[bit] > 0 {
			result |= uint64(1) << bit
		}
	}
	return result, true
}

func tokenize(text string) []string {
	normalized := normalize.Text(text)
	if normalized == "" {
		return nil
	}

	parts := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}

func hashToken64(token string) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(token))
	return hasher.Sum64()
}
