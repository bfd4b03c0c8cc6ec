package scraper

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/driftwatch/internal/changedetect"
	"horse.fit/driftwatch/internal/db"
	"horse.fit/driftwatch/internal/embedding"
	"horse.fit/driftwatch/internal/fingerprint"
	"horse.fit/driftwatch/internal/globaltime"
	"horse.fit/driftwatch/internal/ingest"
	"horse.fit/driftwatch/internal/novelty"
)

const (
	DefaultFailureThreshold = 5
	DefaultConcurrency      = 3

	// Resource kinds. An article resource carries one document; an index
	// resource lists links to many.
	KindArticle = "article"
	KindIndex   = "index"
)

// CheckOutcome summarizes one completed resource check.
type CheckOutcome struct {
	ResourceID    int64
	URL           string
	ChangeType    string
	DetectionTier int
	Stored        bool
	UnitIDs       []int64
	Suspended     bool
	Reason        string
}

// Monitor drives periodic checks over monitored resources. Checks on
// distinct resources run concurrently up to a bound; checks on the same
// resource are serialized through a per-resource lock.
type Monitor struct {
	pool             *db.Pool
	fetcher          *Fetcher
	verifier         *novelty.Verifier
	ingestor         *ingest.Service
	failureThreshold int
	concurrency      int
	logger           zerolog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewMonitor(
	pool *db.Pool,
	fetcher *Fetcher,
	verifier *novelty.Verifier,
	ingestor *ingest.Service,
	failureThreshold int,
	concurrency int,
	logger zerolog.Logger,
) *Monitor {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Monitor{
		pool:             pool,
		fetcher:          fetcher,
		verifier:         verifier,
		ingestor:         ingestor,
		failureThreshold: failureThreshold,
		concurrency:      concurrency,
		logger:           logger,
		locks:            make(map[int64]*sync.Mutex),
	}
}

// CheckAll checks up to limit active resources, least recently checked
// first. Individual check failures are logged and counted against the
// resource, never propagated; only listing failures abort the sweep.
func (m *Monitor) CheckAll(ctx context.Context, limit int) ([]CheckOutcome, error) {
	resources, err := m.pool.ListActiveResources(ctx, limit)
	if err != nil {
		return nil, err
	}

	outcomes := make([]CheckOutcome, len(resources))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(m.concurrency)

	for i, resource := range resources {
		group.Go(func() error {
			outcome, err := m.CheckResource(groupCtx, resource)
			if err != nil {
				m.logger.Warn().
					Err(err).
					Int64("resource_id", resource.ResourceID).
					Str("url", resource.URL).
					Msg("resource check failed")
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// CheckResource runs one full check: fetch, extract, classify, ingest
// what is novel, and write back the fingerprint and the audit event.
func (m *Monitor) CheckResource(ctx context.Context, resource db.ResourceRow) (CheckOutcome, error) {
	lock := m.resourceLock(resource.ResourceID)
	lock.Lock()
	defer lock.Unlock()

	outcome := CheckOutcome{ResourceID: resource.ResourceID, URL: resource.URL}

	html, err := m.fetcher.FetchHTML(ctx, resource.URL)
	if err != nil {
		return m.recordFailure(ctx, resource, outcome, "fetch", err)
	}

	if resource.Kind == KindIndex {
		return m.checkIndex(ctx, resource, outcome, html)
	}
	return m.checkArticle(ctx, resource, outcome, html)
}

func (m *Monitor) checkArticle(ctx context.Context, resource db.ResourceRow, outcome CheckOutcome, html string) (CheckOutcome, error) {
	title, text, err := ExtractArticle(html, resource.URL)
	if err != nil {
		return m.recordFailure(ctx, resource, outcome, "extract", err)
	}

	current := fingerprint.New(text)
	result := m.verifier.VerifyNovel(ctx, novelty.SourceWebScrape, novelty.Payload{
		Source:       resource.Source,
		Title:        title,
		Fingerprint:  &current,
		PriorState:   priorState(resource, m.logger),
		TextForEmbed: text,
	}, resource.CompanyID)

	verdict := result.Verdict
	if verdict == nil {
		// VerifyNovel always classifies when a fingerprint is supplied.
		verdict = &changedetect.Verdict{Type: changedetect.ChangeNew, DetectionTier: changedetect.TierExact, RequiresProcessing: true}
	}
	outcome.ChangeType = string(verdict.Type)
	outcome.DetectionTier = verdict.DetectionTier
	outcome.Reason = result.Reason

	var unitID *int64
	ingestOutcome := ingest.Outcome{}
	if result.IsNovel {
		resourceID := resource.ResourceID
		ingestOutcome, err = m.ingestor.Store(ctx, ingest.Submission{
			CompanyID:  resource.CompanyID,
			SourceType: novelty.SourceWebScrape,
			Source:     resource.Source,
			Title:      title,
			ResourceID: &resourceID,
			Metadata:   map[string]any{"url": resource.URL},
		}, text, verdict.NewEmbedding)
		if err != nil {
			return m.recordFailure(ctx, resource, outcome, "ingest", err)
		}
		if ingestOutcome.Stored {
			outcome.Stored = true
			outcome.UnitIDs = []int64{ingestOutcome.UnitID}
			unitID = &ingestOutcome.UnitID
		} else {
			outcome.Reason = ingestOutcome.Reason
		}
	}

	now := globaltime.UTC()
	update := db.FingerprintUpdate{
		ResourceID: resource.ResourceID,
		ExactHash:  current.ExactHash,
		Changed:    verdict.Type != changedetect.ChangeIdentical,
		CheckedAt:  now,
	}
	if current.HasSimhash {
		simhash := int64(current.Simhash)
		update.Simhash = &simhash
	}
	update.Embedding = baselineEmbedding(*verdict, ingestOutcome)
	if err := m.pool.UpdateResourceFingerprint(ctx, update); err != nil {
		return outcome, err
	}

	m.recordCheckEvent(ctx, resource.ResourceID, *verdict, unitID, checkEventOutcome(result, ingestOutcome), now)
	return outcome, nil
}

func (m *Monitor) checkIndex(ctx context.Context, resource db.ResourceRow, outcome CheckOutcome, html string) (CheckOutcome, error) {
	titles, err := ExtractItemTitles(html)
	if err != nil {
		return m.recordFailure(ctx, resource, outcome, "extract", err)
	}

	result := m.verifier.VerifyNovel(ctx, novelty.SourceWebScrape, novelty.Payload{
		Source:     resource.Source,
		PriorState: priorState(resource, m.logger),
		ItemTitles: titles,
	}, resource.CompanyID)
	outcome.Reason = result.Reason
	outcome.ChangeType = string(changedetect.ChangeIdentical)
	outcome.DetectionTier = changedetect.TierExact

	if result.IsNovel {
		outcome.ChangeType = string(changedetect.ChangeNew)
		for _, title := range result.NewItemTitles {
			resourceID := resource.ResourceID
			stored, err := m.ingestor.Store(ctx, ingest.Submission{
				CompanyID:  resource.CompanyID,
				SourceType: novelty.SourceWebScrape,
				Source:     resource.Source,
				Title:      title,
				ResourceID: &resourceID,
				Metadata:   map[string]any{"url": resource.URL, "item_title": title},
			}, title, nil)
			if err != nil {
				m.logger.Warn().
					Err(err).
					Int64("resource_id", resource.ResourceID).
					Str("item_title", title).
					Msg("index item ingest failed")
				continue
			}
			if stored.Stored {
				outcome.Stored = true
				outcome.UnitIDs = append(outcome.UnitIDs, stored.UnitID)
			}
		}
	}

	now := globaltime.UTC()
	if err := m.pool.UpdateResourceSeenTitles(ctx, resource.ResourceID, mergeTitles(resource.SeenItemTitles, titles), now); err != nil {
		return outcome, err
	}

	verdict := changedetect.Verdict{
		Type:               changedetect.ChangeIdentical,
		DetectionTier:      changedetect.TierExact,
		RequiresProcessing: false,
	}
	if result.IsNovel {
		verdict.Type = changedetect.ChangeNew
		verdict.RequiresProcessing = true
	}
	var firstUnit *int64
	if len(outcome.UnitIDs) > 0 {
		firstUnit = &outcome.UnitIDs[0]
	}
	m.recordCheckEvent(ctx, resource.ResourceID, verdict, firstUnit, indexEventOutcome(result, outcome), now)
	return outcome, nil
}

// recordFailure bumps the failure counter and trips the circuit breaker
// once consecutive failures reach the threshold.
func (m *Monitor) recordFailure(ctx context.Context, resource db.ResourceRow, outcome CheckOutcome, stage string, cause error) (CheckOutcome, error) {
	outcome.Reason = stage + " failed"

	now := globaltime.UTC()
	failures, err := m.pool.RecordResourceFailure(ctx, resource.ResourceID, now)
	if err != nil {
		m.logger.Error().
			Err(err).
			Int64("resource_id", resource.ResourceID).
			Msg("failed to record resource failure")
		return outcome, cause
	}

	if failures >= m.failureThreshold {
		if err := m.pool.SetResourceStatus(ctx, resource.ResourceID, "suspended", now); err != nil {
			m.logger.Error().
				Err(err).
				Int64("resource_id", resource.ResourceID).
				Msg("failed to suspend resource")
		} else {
			outcome.Suspended = true
			m.logger.Warn().
				Int64("resource_id", resource.ResourceID).
				Str("url", resource.URL).
				Int("consecutive_failures", failures).
				Msg("resource suspended after repeated failures")
		}
	}

	m.recordCheckEvent(ctx, resource.ResourceID, changedetect.Verdict{
		Type:          changedetect.ChangeIdentical,
		DetectionTier: changedetect.TierExact,
	}, nil, stage+"_error", now)
	return outcome, cause
}

// recordCheckEvent appends to the audit ledger; a ledger write failure is
// logged, the check itself already succeeded.
func (m *Monitor) recordCheckEvent(ctx context.Context, resourceID int64, verdict changedetect.Verdict, unitID *int64, eventOutcome string, now time.Time) {
	err := m.pool.InsertCheckEvent(ctx, db.CheckEventRecord{
		ResourceID:         resourceID,
		ChangeType:         string(verdict.Type),
		DetectionTier:      verdict.DetectionTier,
		SimilarityScore:    verdict.SimilarityScore,
		RequiresProcessing: verdict.RequiresProcessing,
		UnitID:             unitID,
		Outcome:            eventOutcome,
		CreatedAt:          now,
	})
	if err != nil {
		m.logger.Warn().
			Err(err).
			Int64("resource_id", resourceID).
			Msg("failed to record check event")
	}
}

func (m *Monitor) resourceLock(resourceID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[resourceID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[resourceID] = lock
	}
	return lock
}

// priorState converts the stored resource row into verifier input. A stored
// embedding that fails to parse is dropped; tier 3 then stays conservative.
func priorState(resource db.ResourceRow, logger zerolog.Logger) *novelty.ResourceState {
	state := &novelty.ResourceState{SeenItemTitles: resource.SeenItemTitles}

	if resource.ExactHash != nil && *resource.ExactHash != "" {
		fp := &fingerprint.Fingerprint{ExactHash: *resource.ExactHash}
		if resource.Simhash != nil {
			fp.Simhash = uint64(*resource.Simhash)
			fp.HasSimhash = true
		}
		state.Fingerprint = fp
	}

	if resource.LastEmbedding != nil && *resource.LastEmbedding != "" {
		values, err := embedding.ParseVectorLiteral(*resource.LastEmbedding)
		if err != nil {
			logger.Warn().
				Err(err).
				Int64("resource_id", resource.ResourceID).
				Msg("stored embedding unparsable; ignoring")
		} else {
			state.Embedding = values
		}
	}

	if state.Fingerprint == nil && len(state.Embedding) == 0 && len(state.SeenItemTitles) == 0 {
		return nil
	}
	return state
}

// baselineEmbedding picks the vector written back onto the resource. The
// stored baseline must stay fixed across trivial and minor verdicts so that
// gradual drift accumulates against one reference; it moves only when a new
// or major_update observation establishes fresh content.
func baselineEmbedding(verdict changedetect.Verdict, stored ingest.Outcome) *string {
	switch verdict.Type {
	case changedetect.ChangeNew, changedetect.ChangeMajorUpdate:
	default:
		return nil
	}
	if len(verdict.NewEmbedding) > 0 {
		if literal, err := embedding.ToVectorLiteral(verdict.NewEmbedding, len(verdict.NewEmbedding)); err == nil {
			return &literal
		}
	}
	// First observations never carry a classifier embedding; seed the
	// baseline from the vector the ingest pipeline computed for the unit.
	return stored.EmbeddingLiteral
}

// maxSeenTitles bounds the per-resource title memory; the oldest entries
// age out first.
const maxSeenTitles = 500

func mergeTitles(stored, observed []string) []string {
	merged := make([]string, 0, len(stored)+len(observed))
	seen := make(map[string]struct{}, len(stored)+len(observed))
	for _, list := range [][]string{stored, observed} {
		for _, title := range list {
			key := strings.ToLower(strings.Join(strings.Fields(title), " "))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, strings.TrimSpace(title))
		}
	}
	if len(merged) > maxSeenTitles {
		merged = merged[len(merged)-maxSeenTitles:]
	}
	return merged
}

func checkEventOutcome(result novelty.Result, stored ingest.Outcome) string {
	if !result.IsNovel {
		return "skipped"
	}
	if stored.Stored {
		return "stored"
	}
	return "rejected_duplicate"
}

func indexEventOutcome(result novelty.Result, outcome CheckOutcome) string {
	if !result.IsNovel {
		return "skipped"
	}
	if outcome.Stored {
		return "stored"
	}
	return "rejected_duplicate"
}
