package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/shelfscan/internal/enrichment"
	"github.com/lehigh-university-libraries/shelfscan/internal/models"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
	"github.com/lehigh-university-libraries/shelfscan/internal/quota"
	"github.com/lehigh-university-libraries/shelfscan/internal/retry"
	"github.com/lehigh-university-libraries/shelfscan/internal/storage"
)

const duneResponse = "Here you go:\n```json\n[{\"title\":\"Dune\",\"author\":\"Frank Herbert\",\"isbn\":\"9780441013593\",\"genre\":\"Science Fiction\"}]\n```"

type fakeVision struct {
	mu      sync.Mutex
	calls   int
	respond func(call int) (string, error)
}

func (f *fakeVision) Analyze(ctx context.Context, image []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.respond(call)
}

func (f *fakeVision) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeUsage struct {
	tier  models.Tier
	count int
}

func (u fakeUsage) Tier(ctx context.Context) (models.Tier, error) { return u.tier, nil }

func (u fakeUsage) CurrentCollectionSize(ctx context.Context) (int, error) { return u.count, nil }

type recordingEnricher struct {
	calls int
}

func (e *recordingEnricher) Run(ctx context.Context, admitted []models.CandidateBook) <-chan enrichment.Result {
	e.calls++
	out := make(chan enrichment.Result)
	close(out)
	return out
}

type fixedGate bool

func (g fixedGate) TryAcquire() bool { return bool(g) }

type stubCovers struct{}

func (stubCovers) FetchCover(ctx context.Context, isbn, title, author string) (*models.CoverInfo, error) {
	return &models.CoverInfo{URL: "http://books.google.com/dune.jpg", Description: "Desert planet", PageCount: 412}, nil
}

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, title, author, description, genre string) (string, error) {
	return "Adult", nil
}

func testRetry() retry.Policy {
	return retry.Policy{MaxRetries: 3, Delay: time.Millisecond}
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, e)
		case <-timeout:
			t.Fatal("scan did not finish")
			return got
		}
	}
}

func find(events []Event, typ EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func scanFailure(t *testing.T, events []Event) *Failure {
	t.Helper()
	failed := find(events, EventScanFailed)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].Failure)
	return failed[0].Failure
}

func TestStartScanFailures(t *testing.T) {
	tests := []struct {
		name          string
		respond       func(call int) (string, error)
		gate          fixedGate
		wantKind      ErrorKind
		wantCalls     int
		wantRetryable bool
	}{
		{
			name: "network errors exhaust retries",
			respond: func(int) (string, error) {
				return "", &providers.NetworkError{Provider: "test", Err: errors.New("connection refused")}
			},
			gate:          true,
			wantKind:      KindNetwork,
			wantCalls:     4,
			wantRetryable: true,
		},
		{
			name: "auth error is not retried",
			respond: func(int) (string, error) {
				return "", &providers.AuthError{Provider: "test", StatusCode: 401, Message: "bad key"}
			},
			gate:          true,
			wantKind:      KindAuth,
			wantCalls:     1,
			wantRetryable: false,
		},
		{
			name: "remote quota is not retried",
			respond: func(int) (string, error) {
				return "", &providers.QuotaExceededError{Provider: "test", StatusCode: 402, Message: "billing"}
			},
			gate:          true,
			wantKind:      KindRemoteQuota,
			wantCalls:     1,
			wantRetryable: false,
		},
		{
			name:          "rate limiter denies the vision call",
			respond:       func(int) (string, error) { return duneResponse, nil },
			gate:          false,
			wantKind:      KindRateLimited,
			wantCalls:     0,
			wantRetryable: true,
		},
		{
			name:          "unparseable response",
			respond:       func(int) (string, error) { return "I see some books on a shelf.", nil },
			gate:          true,
			wantKind:      KindParse,
			wantCalls:     1,
			wantRetryable: false,
		},
		{
			name:          "no books detected",
			respond:       func(int) (string, error) { return "```json\n[]\n```", nil },
			gate:          true,
			wantKind:      KindNoBooks,
			wantCalls:     1,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vision := &fakeVision{respond: tt.respond}
			enricher := &recordingEnricher{}
			sessions := storage.New()
			o := New(Config{
				Vision:   vision,
				Gate:     tt.gate,
				Retry:    testRetry(),
				Library:  storage.NewMemoryStore(),
				Usage:    fakeUsage{tier: models.TierFree},
				Enricher: enricher,
				Sessions: sessions,
			})

			events, err := o.StartScan(context.Background(), "user-1", []byte("jpeg"))
			require.NoError(t, err)
			got := drain(t, events)

			f := scanFailure(t, got)
			assert.Equal(t, tt.wantKind, f.Kind)
			assert.NotEmpty(t, f.Message)
			assert.Equal(t, tt.wantCalls, vision.Calls())
			assert.Equal(t, tt.wantRetryable, f.Retryable)
			assert.Zero(t, enricher.calls)

			last := got[len(got)-1]
			assert.Equal(t, StateFailed, last.State)

			all := sessions.GetAll()
			require.Len(t, all, 1)
			assert.Equal(t, string(StateFailed), all[0].State)
			assert.Equal(t, f.Message, all[0].Failure)
		})
	}
}

func TestStartScanRetryEvents(t *testing.T) {
	vision := &fakeVision{respond: func(call int) (string, error) {
		if call < 3 {
			return "", &providers.NetworkError{Provider: "test", Err: errors.New("timeout")}
		}
		return duneResponse, nil
	}}
	o := New(Config{
		Vision:   vision,
		Retry:    testRetry(),
		Library:  storage.NewMemoryStore(),
		Usage:    fakeUsage{tier: models.TierPremium},
		Enricher: &recordingEnricher{},
	})

	events, err := o.StartScan(context.Background(), "user-1", []byte("jpeg"))
	require.NoError(t, err)
	got := drain(t, events)

	var inFlight, retrying []int
	for _, e := range got {
		switch e.State {
		case StateInFlight:
			inFlight = append(inFlight, e.Attempt)
		case StateRetrying:
			retrying = append(retrying, e.Attempt)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, inFlight)
	assert.Equal(t, []int{1, 2}, retrying)
	assert.Empty(t, find(got, EventScanFailed))
	assert.Equal(t, 3, vision.Calls())
}

func TestStartScanExhaustedMessageCountsAttempts(t *testing.T) {
	vision := &fakeVision{respond: func(int) (string, error) {
		return "", errors.New("network is unreachable")
	}}
	o := New(Config{
		Vision:   vision,
		Retry:    testRetry(),
		Library:  storage.NewMemoryStore(),
		Usage:    fakeUsage{tier: models.TierFree},
		Enricher: &recordingEnricher{},
	})

	events, err := o.StartScan(context.Background(), "user-1", nil)
	require.NoError(t, err)
	f := scanFailure(t, drain(t, events))

	assert.Equal(t, KindNetwork, f.Kind)
	assert.Equal(t, 4, f.Attempts)
	assert.Contains(t, f.Message, "after 4 attempts")
	assert.True(t, f.Retryable)
}

func TestStartScanQuotaExhausted(t *testing.T) {
	vision := &fakeVision{respond: func(int) (string, error) {
		return `[{"title":"Dune","author":"Frank Herbert"},{"title":"Emma","author":"Jane Austen"}]`, nil
	}}
	enricher := &recordingEnricher{}
	o := New(Config{
		Vision:   vision,
		Retry:    testRetry(),
		Library:  storage.NewMemoryStore(),
		Usage:    fakeUsage{tier: models.TierFree, count: 25},
		Policy:   quota.New(25),
		Enricher: enricher,
	})

	events, err := o.StartScan(context.Background(), "user-1", nil)
	require.NoError(t, err)
	got := drain(t, events)

	summaries := find(got, EventSummary)
	require.Len(t, summaries, 1)
	s := summaries[0].Summary
	assert.True(t, s.LimitReached)
	assert.Zero(t, s.Admitted)
	assert.Equal(t, 2, s.QuotaSkipped)
	assert.Contains(t, s.Narrative, "free limit of 25")
	assert.Zero(t, enricher.calls, "enrichment must not start")
	assert.Equal(t, StateDone, got[len(got)-1].State)
}

func TestStartScanOnlyDuplicates(t *testing.T) {
	lib := storage.NewMemoryStore()
	require.NoError(t, lib.Save(context.Background(), models.BookRecord{
		ID:        "existing",
		Title:     "Dune",
		Author:    "Frank Herbert",
		Status:    models.StatusLibrary,
		DateAdded: time.Now(),
	}))
	enricher := &recordingEnricher{}
	o := New(Config{
		Vision:   &fakeVision{respond: func(int) (string, error) { return duneResponse, nil }},
		Retry:    testRetry(),
		Library:  lib,
		Usage:    fakeUsage{tier: models.TierFree, count: 1},
		Enricher: enricher,
	})

	events, err := o.StartScan(context.Background(), "user-1", nil)
	require.NoError(t, err)
	got := drain(t, events)

	summaries := find(got, EventSummary)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Summary.Duplicates)
	assert.Equal(t, "1 book was already in your library. Nothing new was added.", summaries[0].Summary.Narrative)
	assert.Zero(t, enricher.calls)
}

func TestStartScanRejectsConcurrentScan(t *testing.T) {
	release := make(chan struct{})
	vision := &fakeVision{respond: func(int) (string, error) {
		<-release
		return duneResponse, nil
	}}
	o := New(Config{
		Vision:   vision,
		Retry:    testRetry(),
		Library:  storage.NewMemoryStore(),
		Usage:    fakeUsage{tier: models.TierPremium},
		Enricher: &recordingEnricher{},
	})

	first, err := o.StartScan(context.Background(), "user-1", nil)
	require.NoError(t, err)

	_, err = o.StartScan(context.Background(), "user-1", nil)
	assert.ErrorIs(t, err, ErrScanInProgress)

	other, err := o.StartScan(context.Background(), "user-2", nil)
	require.NoError(t, err)

	_, busy := o.Active("user-1")
	assert.True(t, busy)

	close(release)
	drain(t, first)
	drain(t, other)

	_, busy = o.Active("user-1")
	assert.False(t, busy)

	again, err := o.StartScan(context.Background(), "user-1", nil)
	require.NoError(t, err)
	drain(t, again)
}

func TestStartScanEndToEnd(t *testing.T) {
	lib := storage.NewMemoryStore()
	seq := enrichment.New(enrichment.Config{
		Covers:       stubCovers{},
		Classifier:   stubClassifier{},
		Store:        lib,
		CoverGate:    fixedGate(true),
		ClassifyGate: fixedGate(true),
	})
	o := New(Config{
		Vision:   &fakeVision{respond: func(int) (string, error) { return duneResponse, nil }},
		Gate:     fixedGate(true),
		Retry:    testRetry(),
		Library:  lib,
		Usage:    quota.NewStoreUsage(models.TierPremium, lib),
		Enricher: seq,
	})

	events, err := o.StartScan(context.Background(), "user-1", []byte("jpeg"))
	require.NoError(t, err)
	got := drain(t, events)

	var states []State
	for _, e := range got {
		if e.Type == EventStatus {
			states = append(states, e.State)
		}
	}
	assert.Equal(t, []State{StateInFlight, StateParsing, StateDeduping, StateQuota, StateEnriching, StateDone}, states)

	enriched := find(got, EventBookEnriched)
	require.Len(t, enriched, 1)
	book := enriched[0].Book
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, "Frank Herbert", book.Author)
	assert.Equal(t, "https://books.google.com/dune.jpg", book.CoverImageURL)
	assert.Equal(t, "Adult", book.AgeRating)
	assert.Equal(t, models.StatusLibrary, book.Status)
	require.NotNil(t, book.PageCount)
	assert.Equal(t, 412, *book.PageCount)

	summaries := find(got, EventSummary)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Summary.Persisted)
	assert.Equal(t, "Added 1 book.", summaries[0].Summary.Narrative)

	count, err := lib.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	for _, e := range got {
		assert.NotEmpty(t, e.ScanID)
	}
}

func TestStartScanConcurrentSessionsShareFreeLimit(t *testing.T) {
	ctx := context.Background()
	lib := storage.NewMemoryStore()
	for i := range 23 {
		require.NoError(t, lib.Save(ctx, models.BookRecord{
			ID:        fmt.Sprintf("seed-%d", i),
			Title:     fmt.Sprintf("Seeded Volume %d", i),
			Author:    "Someone",
			Status:    models.StatusLibrary,
			DateAdded: time.Now(),
		}))
	}

	release := make(chan struct{})
	shelves := []string{
		`[{"title":"Dune","author":"Frank Herbert"},{"title":"Emma","author":"Jane Austen"}]`,
		`[{"title":"Ulysses","author":"James Joyce"},{"title":"Persuasion","author":"Jane Austen"}]`,
	}
	vision := &fakeVision{respond: func(call int) (string, error) {
		<-release
		return shelves[(call-1)%len(shelves)], nil
	}}
	o := New(Config{
		Vision:   vision,
		Retry:    testRetry(),
		Library:  lib,
		Usage:    quota.NewStoreUsage(models.TierFree, lib),
		Policy:   quota.New(25),
		Enricher: enrichment.New(enrichment.Config{Store: lib}),
	})

	phone, err := o.StartScan(ctx, "phone", nil)
	require.NoError(t, err)
	tablet, err := o.StartScan(ctx, "tablet", nil)
	require.NoError(t, err)

	close(release)
	var summaries []*Summary
	for _, events := range []<-chan Event{phone, tablet} {
		got := find(drain(t, events), EventSummary)
		require.Len(t, got, 1)
		summaries = append(summaries, got[0].Summary)
	}

	count, err := lib.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, count)

	admitted, skipped := 0, 0
	for _, s := range summaries {
		admitted += s.Admitted
		skipped += s.QuotaSkipped
	}
	assert.Equal(t, 2, admitted)
	assert.Equal(t, 2, skipped)
}
