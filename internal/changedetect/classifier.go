// Package changedetect classifies how a monitored resource's content moved
// between two observations. Comparison escalates through three tiers of
// increasing cost: exact hash equality, simhash similarity, and finally a
// semantic embedding comparison. Tiers 1 and 2 are local computation; tier
// 3 is a network call and is only reached when fuzzy similarity is low.
package changedetect

import (
	"context"

	"github.com/rs/zerolog"

	"horse.fit/driftwatch/internal/embedding"
	"horse.fit/driftwatch/internal/fingerprint"
)

// ChangeType labels the magnitude of an observed change.
type ChangeType string

const (
	ChangeNew         ChangeType = "new"
	ChangeIdentical   ChangeType = "identical"
	ChangeTrivial     ChangeType = "trivial"
	ChangeMinorUpdate ChangeType = "minor_update"
	ChangeMajorUpdate ChangeType = "major_update"
)

// Detection tiers. The tier recorded on a verdict is the highest one that
// ran, not the one that decided.
const (
	TierExact    = 1
	TierFuzzy    = 2
	TierSemantic = 3
)

// Thresholds are similarity cutoffs, compared non-strictly: a score equal
// to the threshold lands in the cheaper class.
type Thresholds struct {
	SimhashTrivial   float64
	SimhashMinor     float64
	EmbeddingSimilar float64
}

// DefaultThresholds mirror the production tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SimhashTrivial:   0.95,
		SimhashMinor:     0.80,
		EmbeddingSimilar: 0.90,
	}
}

// Verdict is the outcome of one comparison. It is produced fresh each time
// and never persisted as a whole; callers copy the fields they need onto
// the resource's stored state.
type Verdict struct {
	Type               ChangeType
	DetectionTier      int
	SimilarityScore    *float64
	RequiresProcessing bool
	// NewEmbedding carries the tier-3 embedding when one was generated,
	// so callers can persist it without a second provider call.
	NewEmbedding []float64
}

// Classifier compares fingerprints and, when needed, embeddings. The
// embedding provider may be nil; tier 3 then degrades to a conservative
// major_update.
type Classifier struct {
	embedder   embedding.Provider
	thresholds Thresholds
	logger     zerolog.Logger
}

func New(embedder embedding.Provider, thresholds Thresholds, logger zerolog.Logger) *Classifier {
	if thresholds.SimhashTrivial <= 0 {
		thresholds.SimhashTrivial = DefaultThresholds().SimhashTrivial
	}
	if thresholds.SimhashMinor <= 0 {
		thresholds.SimhashMinor = DefaultThresholds().SimhashMinor
	}
	if thresholds.EmbeddingSimilar <= 0 {
		thresholds.EmbeddingSimilar = DefaultThresholds().EmbeddingSimilar
	}
	return &Classifier{
		embedder:   embedder,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Classify runs the tier state machine for one (previous, current)
// observation pair. oldEmbedding and newText feed tier 3 and may be empty;
// classification then stays conservative. Classify never returns an error:
// embedding failures fail open into major_update so that a backend outage
// cannot silently suppress real changes.
func (c *Classifier) Classify(
	ctx context.Context,
	old *fingerprint.Fingerprint,
	current fingerprint.Fingerprint,
	oldEmbedding []float64,
	newText string,
) Verdict {
	// Tier 1: first observation, then exact equality.
	if old == nil || old.ExactHash == "" {
		return Verdict{
			Type:               ChangeNew,
			DetectionTier:      TierExact,
			RequiresProcessing: true,
		}
	}
	if old.ExactHash == current.ExactHash {
		return Verdict{
			Type:               ChangeIdentical,
			DetectionTier:      TierExact,
			SimilarityScore:    floatPtr(1),
			RequiresProcessing: false,
		}
	}

	// Tier 2: fuzzy comparison. Without simhashes on both sides the only
	// available signal is "exact hashes differ", which is indistinguishable
	// from a cosmetic edit; escalate to tier 3.
	if !old.HasSimhash || !current.HasSimhash {
		return c.classifySemantic(ctx, oldEmbedding, newText, nil)
	}

	similarity := fingerprint.Similarity(old.Simhash, current.Simhash)
	switch {
	case similarity >= c.thresholds.SimhashTrivial:
		// Cosmetic churn: rotated ads, timestamps, reordered boilerplate.
		return Verdict{
			Type:               ChangeTrivial,
			DetectionTier:      TierFuzzy,
			SimilarityScore:    floatPtr(similarity),
			RequiresProcessing: false,
		}
	case similarity >= c.thresholds.SimhashMinor:
		// Logged but not reprocessed; favors fewer spurious re-enrichments.
		return Verdict{
			Type:               ChangeMinorUpdate,
			DetectionTier:      TierFuzzy,
			SimilarityScore:    floatPtr(similarity),
			RequiresProcessing: false,
		}
	default:
		return c.classifySemantic(ctx, oldEmbedding, newText, floatPtr(similarity))
	}
}

// classifySemantic is tier 3. Hash divergence can be purely syntactic (a
// template redesign); a high embedding cosine downgrades the verdict to
// minor_update. When the semantic check cannot run, assume a real change.
func (c *Classifier) classifySemantic(
	ctx context.Context,
	oldEmbedding []float64,
	newText string,
	fuzzySimilarity *float64,
) Verdict {
	major := Verdict{
		Type:               ChangeMajorUpdate,
		DetectionTier:      TierSemantic,
		SimilarityScore:    fuzzySimilarity,
		RequiresProcessing: true,
	}

	if c == nil || c.embedder == nil || len(oldEmbedding) == 0 || newText == "" {
		return major
	}

	newEmbedding, err := c.embedder.Embed(ctx, newText)
	if err != nil {
		// Fail open: a spurious reprocess beats silently dropping news.
		c.logger.Warn().Err(err).Msg("embedding unavailable during tier-3 classification; confirming major_update")
		return major
	}

	cosine := embedding.CosineSimilarity(oldEmbedding, newEmbedding)
	if cosine >= c.thresholds.EmbeddingSimilar {
		return Verdict{
			Type:               ChangeMinorUpdate,
			DetectionTier:      TierSemantic,
			SimilarityScore:    floatPtr(cosine),
			RequiresProcessing: false,
			NewEmbedding:       newEmbedding,
		}
	}

	major.SimilarityScore = floatPtr(cosine)
	major.NewEmbedding = newEmbedding
	return major
}

func floatPtr(v float64) *float64 {
	p := new(float64)
	*p = v
	return p
}
