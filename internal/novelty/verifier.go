// Package novelty decides whether incoming content is new enough to spend
// enrichment and storage on, using the duplicate-detection strategy that
// fits the source shape: change classification for monitored web pages, a
// message-id lookup for email, and a title+recency lookup for periodic
// feeds. Storage failures fail open to novel; duplication is preferred
// over data loss, with the near-duplicate embedding check at persistence
// time as the second line of defense.
package novelty

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/driftwatch/internal/changedetect"
	"horse.fit/driftwatch/internal/fingerprint"
	"horse.fit/driftwatch/internal/globaltime"
	"horse.fit/driftwatch/internal/normalize"
)

// SourceType identifies the shape of an incoming content item.
type SourceType string

const (
	SourceWebScrape        SourceType = "web_scrape"
	SourceEmail            SourceType = "email"
	SourcePeriodicFeed     SourceType = "periodic_feed"
	SourceDirectSubmission SourceType = "direct_submission"
)

// DefaultFeedWindow bounds the title-match lookback for periodic feeds.
const DefaultFeedWindow = 24 * time.Hour

// Store is the row-store collaborator used for keyed duplicate lookups.
type Store interface {
	FindUnitByMessageID(ctx context.Context, companyID, source, messageID string) (int64, bool, error)
	FindUnitByTitleSince(ctx context.Context, companyID, source, title string, since time.Time) (int64, bool, error)
}

// Payload carries the per-source inputs for one verification.
type Payload struct {
	Source    string
	MessageID string
	Title     string

	// Web single-article inputs.
	Fingerprint  *fingerprint.Fingerprint
	PriorState   *ResourceState
	TextForEmbed string

	// Web multi-item index inputs.
	ItemTitles []string
}

// ResourceState is the previously stored observation of a monitored
// resource.
type ResourceState struct {
	Fingerprint    *fingerprint.Fingerprint
	Embedding      []float64
	SeenItemTitles []string
}

// Result is the verification outcome. Duplicates are a normal result
// value, never an error.
type Result struct {
	IsNovel      bool
	Reason       string
	DuplicateRef *int64
	// Verdict is set on the single-article web path so the caller can
	// reuse the classification (tier, similarity, fresh embedding).
	Verdict *changedetect.Verdict
	// NewItemTitles is the unseen subset on the multi-item web path; the
	// caller enriches exactly these.
	NewItemTitles []string
}

// Verifier dispatches novelty checks by source type.
type Verifier struct {
	store      Store
	classifier *changedetect.Classifier
	feedWindow time.Duration
	logger     zerolog.Logger
}

func New(store Store, classifier *changedetect.Classifier, feedWindow time.Duration, logger zerolog.Logger) *Verifier {
	if feedWindow <= 0 {
		feedWindow = DefaultFeedWindow
	}
	return &Verifier{
		store:      store,
		classifier: classifier,
		feedWindow: feedWindow,
		logger:     logger,
	}
}

// VerifyNovel runs the duplicate-detection strategy for one incoming item.
func (v *Verifier) VerifyNovel(ctx context.Context, sourceType SourceType, payload Payload, companyID string) Result {
	switch sourceType {
	case SourceDirectSubmission:
		// Caller controls correctness; no verification overhead.
		return Result{IsNovel: true, Reason: "direct submission"}
	case SourceEmail:
		return v.verifyEmail(ctx, payload, companyID)
	case SourcePeriodicFeed:
		return v.verifyPeriodicFeed(ctx, payload, companyID)
	case SourceWebScrape:
		return v.verifyWebScrape(ctx, payload)
	default:
		// Unknown source shapes get the fail-open treatment too.
		v.logger.Warn().Str("source_type", string(sourceType)).Msg("unknown source type; treating as novel")
		return Result{IsNovel: true, Reason: "unknown source type"}
	}
}

func (v *Verifier) verifyEmail(ctx context.Context, payload Payload, companyID string) Result {
	messageID := strings.TrimSpace(payload.MessageID)
	if messageID == "" {
		// Without the globally unique key there is nothing to match on.
		return Result{IsNovel: true, Reason: "email without message id"}
	}

	unitID, found, err := v.store.FindUnitByMessageID(ctx, companyID, payload.Source, messageID)
	if err != nil {
		v.logger.Warn().Err(err).Str("message_id", messageID).Msg("message id lookup failed; failing open to novel")
		return Result{IsNovel: true, Reason: "storage unavailable during verification"}
	}
	if found {
		return Result{
			IsNovel:      false,
			Reason:       "message id already ingested",
			DuplicateRef: &unitID,
		}
	}
	return Result{IsNovel: true, Reason: "message id not seen"}
}

func (v *Verifier) verifyPeriodicFeed(ctx context.Context, payload Payload, companyID string) Result {
	title := strings.TrimSpace(payload.Title)
	if title == "" {
		return Result{IsNovel: true, Reason: "feed item without title"}
	}

	since := globaltime.UTC().Add(-v.feedWindow)
	unitID, found, err := v.store.FindUnitByTitleSince(ctx, companyID, payload.Source, title, since)
	if err != nil {
		v.logger.Warn().Err(err).Str("title", title).Msg("title window lookup failed; failing open to novel")
		return Result{IsNovel: true, Reason: "storage unavailable during verification"}
	}
	if found {
		return Result{
			IsNovel:      false,
			Reason:       "same title within dedup window",
			DuplicateRef: &unitID,
		}
	}
	return Result{IsNovel: true, Reason: "title not seen within dedup window"}
}

func (v *Verifier) verifyWebScrape(ctx context.Context, payload Payload) Result {
	if len(payload.ItemTitles) > 0 {
		return v.verifyIndexPage(payload)
	}
	return v.verifyArticlePage(ctx, payload)
}

// verifyArticlePage delegates to the tiered change classifier; the page is
// novel exactly when the verdict requires processing.
func (v *Verifier) verifyArticlePage(ctx context.Context, payload Payload) Result {
	if payload.Fingerprint == nil {
		return Result{IsNovel: true, Reason: "no fingerprint computed"}
	}

	var prior *fingerprint.Fingerprint
	var priorEmbedding []float64
	if payload.PriorState != nil {
		prior = payload.PriorState.Fingerprint
		priorEmbedding = payload.PriorState.Embedding
	}

	verdict := v.classifier.Classify(ctx, prior, *payload.Fingerprint, priorEmbedding, payload.TextForEmbed)
	result := Result{
		IsNovel: verdict.RequiresProcessing,
		Reason:  "change classified as " + string(verdict.Type),
		Verdict: &verdict,
	}
	return result
}

// verifyIndexPage compares the extracted item-title set against the titles
// previously stored for the resource. Any unseen title makes the batch
// novel, and only the unseen subset is returned for enrichment.
func (v *Verifier) verifyIndexPage(payload Payload) Result {
	seen := make(map[string]struct{})
	if payload.PriorState != nil {
		for _, title := range payload.PriorState.SeenItemTitles {
			key := normalize.Text(title)
			if key != "" {
				seen[key] = struct{}{}
			}
		}
	}

	unseen := make([]string, 0, len(payload.ItemTitles))
	dedup := make(map[string]struct{}, len(payload.ItemTitles))
	for _, title := range payload.ItemTitles {
		key := normalize.Text(title)
		if key == "" {
			continue
		}
		if _, dup := dedup[key]; dup {
			continue
		}
		dedup[key] = struct{}{}
		if _, ok := seen[key]; !ok {
			unseen = append(unseen, strings.TrimSpace(title))
		}
	}

	if len(unseen) == 0 {
		return Result{IsNovel: false, Reason: "no unseen items on index page"}
	}

	reason := "unseen items on index page"
	if len(seen) == 0 {
		reason = "first observation of index page"
	}
	return Result{
		IsNovel:       true,
		Reason:        reason,
		NewItemTitles: unseen,
	}
}
