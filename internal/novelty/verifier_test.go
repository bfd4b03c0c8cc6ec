package novelty

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/driftwatch/internal/changedetect"
	"horse.fit/driftwatch/internal/fingerprint"
	"horse.fit/driftwatch/internal/globaltime"
)

type fakeStore struct {
	messageHit   bool
	messageID    int64
	messageErr   error
	titleHit     bool
	titleID      int64
	titleErr     error
	lastSince    time.Time
	lastTitle    string
	lastMessage  string
	messageCalls int
	titleCalls   int
}

func (f *fakeStore) FindUnitByMessageID(_ context.Context, _, _, messageID string) (int64, bool, error) {
	f.messageCalls++
	f.lastMessage = messageID
	if f.messageErr != nil {
		return 0, false, f.messageErr
	}
	return f.messageID, f.messageHit, nil
}

func (f *fakeStore) FindUnitByTitleSince(_ context.Context, _, _, title string, since time.Time) (int64, bool, error) {
	f.titleCalls++
	f.lastTitle = title
	f.lastSince = since
	if f.titleErr != nil {
		return 0, false, f.titleErr
	}
	return f.titleID, f.titleHit, nil
}

func testVerifier(store Store) *Verifier {
	classifier := changedetect.New(nil, changedetect.DefaultThresholds(), zerolog.Nop())
	return New(store, classifier, DefaultFeedWindow, zerolog.Nop())
}

func TestVerifyNovel_DirectSubmissionAlwaysNovel(t *testing.T) {
	t.Parallel()

	store := &fakeStore{messageHit: true, titleHit: true}
	v := testVerifier(store)

	result := v.VerifyNovel(context.Background(), SourceDirectSubmission, Payload{Source: "manual"}, "acme")
	if !result.IsNovel {
		t.Fatalf("direct submissions must always be novel")
	}
	if store.messageCalls != 0 || store.titleCalls != 0 {
		t.Fatalf("direct submissions must not hit storage")
	}
}

func TestVerifyNovel_EmailDuplicate(t *testing.T) {
	t.Parallel()

	store := &fakeStore{messageHit: true, messageID: 77}
	v := testVerifier(store)

	result := v.VerifyNovel(context.Background(), SourceEmail, Payload{
		Source:    "inbox",
		MessageID: "<msg-1@example.com>",
	}, "acme")
	if result.IsNovel {
		t.Fatalf("expected duplicate for known message id")
	}
	if result.DuplicateRef == nil || *result.DuplicateRef != 77 {
		t.Fatalf("expected duplicate ref 77, got %v", result.DuplicateRef)
	}
	if store.lastMessage != "<msg-1@example.com>" {
		t.Fatalf("unexpected message id passed to store: %q", store.lastMessage)
	}
}

func TestVerifyNovel_EmailUnseen(t *testing.T) {
	t.Parallel()

	v := testVerifier(&fakeStore{})
	result := v.VerifyNovel(context.Background(), SourceEmail, Payload{
		Source:    "inbox",
		MessageID: "<msg-2@example.com>",
	}, "acme")
	if !result.IsNovel {
		t.Fatalf("expected unseen message id to be novel")
	}
}

func TestVerifyNovel_EmailWithoutMessageID(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	v := testVerifier(store)

	result := v.VerifyNovel(context.Background(), SourceEmail, Payload{Source: "inbox"}, "acme")
	if !result.IsNovel {
		t.Fatalf("expected email without message id to pass through")
	}
	if store.messageCalls != 0 {
		t.Fatalf("no lookup should run without a message id")
	}
}

func TestVerifyNovel_EmailStorageErrorFailsOpen(t *testing.T) {
	t.Parallel()

	v := testVerifier(&fakeStore{messageErr: fmt.Errorf("connection refused")})
	result := v.VerifyNovel(context.Background(), SourceEmail, Payload{
		Source:    "inbox",
		MessageID: "<msg-3@example.com>",
	}, "acme")
	if !result.IsNovel {
		t.Fatalf("storage errors must fail open to novel")
	}
}

func TestVerifyNovel_FeedTitleWithinWindow(t *testing.T) {
	globaltime.SetMockTime(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	store := &fakeStore{titleHit: true, titleID: 5}
	v := testVerifier(store)

	result := v.VerifyNovel(context.Background(), SourcePeriodicFeed, Payload{
		Source: "feed",
		Title:  "Quarterly results released",
	}, "acme")
	if result.IsNovel {
		t.Fatalf("expected duplicate for title inside the window")
	}
	if result.DuplicateRef == nil || *result.DuplicateRef != 5 {
		t.Fatalf("expected duplicate ref 5, got %v", result.DuplicateRef)
	}

	wantSince := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	if !store.lastSince.Equal(wantSince) {
		t.Fatalf("expected 24h lookback since %v, got %v", wantSince, store.lastSince)
	}
}

func TestVerifyNovel_FeedTitleOutsideWindowIsNovel(t *testing.T) {
	t.Parallel()

	// The store only returns matches inside the window; a miss means the
	// prior unit is older than the cutoff.
	v := testVerifier(&fakeStore{titleHit: false})
	result := v.VerifyNovel(context.Background(), SourcePeriodicFeed, Payload{
		Source: "feed",
		Title:  "Quarterly results released",
	}, "acme")
	if !result.IsNovel {
		t.Fatalf("expected title outside the window to be novel")
	}
}

func TestVerifyNovel_FeedWithoutTitle(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	v := testVerifier(store)

	result := v.VerifyNovel(context.Background(), SourcePeriodicFeed, Payload{Source: "feed"}, "acme")
	if !result.IsNovel {
		t.Fatalf("expected feed item without title to pass through")
	}
	if store.titleCalls != 0 {
		t.Fatalf("no lookup should run without a title")
	}
}

func TestVerifyNovel_WebArticleClassified(t *testing.T) {
	t.Parallel()

	v := testVerifier(&fakeStore{})

	current := fingerprint.New("page content")
	prior := fingerprint.New("page content")
	result := v.VerifyNovel(context.Background(), SourceWebScrape, Payload{
		Source:      "web",
		Fingerprint: &current,
		PriorState:  &ResourceState{Fingerprint: &prior},
	}, "acme")

	if result.IsNovel {
		t.Fatalf("identical page must not be novel")
	}
	if result.Verdict == nil || result.Verdict.Type != changedetect.ChangeIdentical {
		t.Fatalf("expected identical verdict, got %+v", result.Verdict)
	}
}

func TestVerifyNovel_WebArticleFirstObservation(t *testing.T) {
	t.Parallel()

	v := testVerifier(&fakeStore{})

	current := fingerprint.New("brand new page")
	result := v.VerifyNovel(context.Background(), SourceWebScrape, Payload{
		Source:      "web",
		Fingerprint: &current,
	}, "acme")

	if !result.IsNovel {
		t.Fatalf("first observation must be novel")
	}
	if result.Verdict == nil || result.Verdict.Type != changedetect.ChangeNew {
		t.Fatalf("expected new verdict, got %+v", result.Verdict)
	}
}

func TestVerifyNovel_IndexPageUnseenSubset(t *testing.T) {
	t.Parallel()

	v := testVerifier(&fakeStore{})

	result := v.VerifyNovel(context.Background(), SourceWebScrape, Payload{
		Source: "web",
		PriorState: &ResourceState{
			SeenItemTitles: []string{"Old Story One", "Old Story Two"},
		},
		ItemTitles: []string{"Old Story One", "Fresh Story", "old story two", "Fresh Story"},
	}, "acme")

	if !result.IsNovel {
		t.Fatalf("expected unseen item to make the page novel")
	}
	if len(result.NewItemTitles) != 1 || result.NewItemTitles[0] != "Fresh Story" {
		t.Fatalf("expected only the unseen title, got %v", result.NewItemTitles)
	}
}

func TestVerifyNovel_IndexPageAllSeen(t *testing.T) {
	t.Parallel()

	v := testVerifier(&fakeStore{})

	result := v.VerifyNovel(context.Background(), SourceWebScrape, Payload{
		Source: "web",
		PriorState: &ResourceState{
			SeenItemTitles: []string{"Story A", "Story B"},
		},
		ItemTitles: []string{"story a", "Story B"},
	}, "acme")

	if result.IsNovel {
		t.Fatalf("expected page with no unseen items to be a duplicate")
	}
	if len(result.NewItemTitles) != 0 {
		t.Fatalf("expected no new titles, got %v", result.NewItemTitles)
	}
}

func TestVerifyNovel_UnknownSourceType(t *testing.T) {
	t.Parallel()

	v := testVerifier(&fakeStore{})
	result := v.VerifyNovel(context.Background(), SourceType("carrier_pigeon"), Payload{Source: "x"}, "acme")
	if !result.IsNovel {
		t.Fatalf("unknown source types must fail open to novel")
	}
}
