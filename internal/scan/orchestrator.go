// Package scan coordinates one shelf scan: the vision call with retries,
// parsing, deduplication, quota, and sequential enrichment.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/shelfscan/internal/dedup"
	"github.com/lehigh-university-libraries/shelfscan/internal/enrichment"
	"github.com/lehigh-university-libraries/shelfscan/internal/metrics"
	"github.com/lehigh-university-libraries/shelfscan/internal/models"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
	"github.com/lehigh-university-libraries/shelfscan/internal/quota"
	"github.com/lehigh-university-libraries/shelfscan/internal/ratelimit"
	"github.com/lehigh-university-libraries/shelfscan/internal/retry"
)

// ErrScanInProgress is returned when the session already has an active scan
var ErrScanInProgress = errors.New("a scan is already in progress for this session")

// VisionService turns a photo into the raw text of a vision model's answer
type VisionService interface {
	Analyze(ctx context.Context, image []byte) (string, error)
}

// Library is the existing collection scans are deduplicated against
type Library interface {
	List(ctx context.Context) ([]models.BookRecord, error)
}

// Enricher persists admitted candidates
type Enricher interface {
	Run(ctx context.Context, admitted []models.CandidateBook) <-chan enrichment.Result
}

// SessionLog records scans and their outcomes
type SessionLog interface {
	Set(scanID string, session *models.ScanSession)
}

// Config wires an Orchestrator to its collaborators
type Config struct {
	Vision   VisionService
	Gate     ratelimit.Gate
	Retry    retry.Policy
	Library  Library
	Usage    quota.UsageQuota
	Policy   *quota.Policy
	Enricher Enricher
	Sessions SessionLog
}

// Orchestrator runs scans, at most one at a time per session
type Orchestrator struct {
	cfg Config

	mu     sync.Mutex
	active map[string]string

	// held from the quota check until enrichment has persisted, since
	// every session shares one library
	admitMu sync.Mutex
}

// New creates an Orchestrator
func New(cfg Config) *Orchestrator {
	if cfg.Policy == nil {
		cfg.Policy = quota.New(quota.DefaultFreeLimit)
	}
	if cfg.Retry.Classify == nil {
		cfg.Retry.Classify = retry.DefaultClassifier
	}
	return &Orchestrator{
		cfg:    cfg,
		active: make(map[string]string),
	}
}

// Active reports the scan ID running for a session, if any
func (o *Orchestrator) Active(sessionID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.active[sessionID]
	return id, ok
}

// StartScan begins a scan and streams its progress. A second request for a
// session with a scan still running is rejected with ErrScanInProgress.
// Cancelling ctx stops the vision call; once enrichment has started it
// runs to completion, and events are dropped if nobody is listening.
func (o *Orchestrator) StartScan(ctx context.Context, sessionID string, image []byte) (<-chan Event, error) {
	scanID := uuid.NewString()

	o.mu.Lock()
	if _, busy := o.active[sessionID]; busy {
		o.mu.Unlock()
		return nil, ErrScanInProgress
	}
	o.active[sessionID] = scanID
	o.mu.Unlock()

	events := make(chan Event, 16)
	run := &scanRun{
		o:         o,
		scanID:    scanID,
		sessionID: sessionID,
		ctx:       ctx,
		events:    events,
		session: &models.ScanSession{
			ID:        scanID,
			UserID:    sessionID,
			State:     string(StateIdle),
			CreatedAt: time.Now(),
		},
	}

	go func() {
		defer close(events)
		defer o.release(sessionID)
		run.execute(image)
	}()

	return events, nil
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, sessionID)
}

type scanRun struct {
	o         *Orchestrator
	scanID    string
	sessionID string
	ctx       context.Context
	events    chan<- Event
	session   *models.ScanSession
}

func (r *scanRun) emit(e Event) {
	e.ScanID = r.scanID
	select {
	case r.events <- e:
	case <-r.ctx.Done():
	}
}

func (r *scanRun) status(state State, attempt int) {
	r.session.State = string(state)
	r.emit(Event{Type: EventStatus, State: state, Attempt: attempt})
}

func (r *scanRun) fail(f *Failure) {
	f.Retryable = retryableKind(f.Kind)
	slog.Warn("Scan failed", "scan_id", r.scanID, "kind", f.Kind, "attempts", f.Attempts, "err", f.Err)
	metrics.Scans.WithLabelValues(string(f.Kind)).Inc()
	r.session.Failure = f.Message
	r.emit(Event{Type: EventScanFailed, Failure: f})
	r.status(StateFailed, 0)
	r.record()
}

func (r *scanRun) finish(s *Summary) {
	result := "success"
	if s.LimitReached {
		result = "limit_reached"
	}
	metrics.Scans.WithLabelValues(result).Inc()
	r.session.Admitted = s.Admitted
	r.session.Duplicates = s.Duplicates
	r.session.QuotaSkip = s.QuotaSkipped
	r.session.Persisted = s.Persisted
	r.session.Narrative = s.Narrative
	r.emit(Event{Type: EventSummary, Summary: s})
	r.status(StateDone, 0)
	r.record()
	slog.Info("Scan finished", "scan_id", r.scanID, "admitted", s.Admitted, "persisted", s.Persisted, "duplicates", s.Duplicates, "quota_skipped", s.QuotaSkipped)
}

func (r *scanRun) record() {
	if r.o.cfg.Sessions == nil {
		return
	}
	r.session.CompletedAt = time.Now()
	snapshot := *r.session
	r.o.cfg.Sessions.Set(r.scanID, &snapshot)
}

func (r *scanRun) execute(image []byte) {
	cfg := r.o.cfg
	if cfg.Sessions != nil {
		snapshot := *r.session
		cfg.Sessions.Set(r.scanID, &snapshot)
	}
	slog.Info("Scan started", "scan_id", r.scanID, "session_id", r.sessionID, "image_bytes", len(image))

	raw, err := r.analyze(image)
	if err != nil {
		r.fail(failureFor(err))
		return
	}

	r.status(StateParsing, 0)
	candidates, err := ParseCandidates(raw)
	if err != nil {
		r.fail(failureFor(err))
		return
	}

	r.admitAndPersist(candidates)
}

// admitAndPersist deduplicates, applies the quota, and enriches what it
// admits. Scans from different sessions take turns here so that none of
// them judges against a library another is about to grow.
func (r *scanRun) admitAndPersist(candidates []models.CandidateBook) {
	cfg := r.o.cfg
	r.o.admitMu.Lock()
	defer r.o.admitMu.Unlock()

	r.status(StateDeduping, 0)
	existing, err := cfg.Library.List(r.ctx)
	if err != nil {
		r.fail(&Failure{Kind: KindStorage, Message: "Couldn't read your library. Try again.", Err: err})
		return
	}
	filtered := dedup.Filter(candidates, existing)
	if len(filtered.Accepted) == 0 && filtered.Duplicates == 0 {
		r.fail(failureFor(ErrNoBooks))
		return
	}

	r.status(StateQuota, 0)
	tier, err := cfg.Usage.Tier(r.ctx)
	if err != nil {
		r.fail(&Failure{Kind: KindStorage, Message: "Couldn't check your plan. Try again.", Err: err})
		return
	}
	count, err := cfg.Usage.CurrentCollectionSize(r.ctx)
	if err != nil {
		r.fail(&Failure{Kind: KindStorage, Message: "Couldn't read your library. Try again.", Err: err})
		return
	}
	decision := cfg.Policy.Admit(filtered.Accepted, filtered.Duplicates, count, tier)

	summary := &Summary{
		Detected:     len(candidates),
		Admitted:     len(decision.Admitted),
		Duplicates:   decision.RejectedForDuplicate,
		QuotaSkipped: decision.RejectedForQuota,
		Ignored:      filtered.Ignored,
		LimitReached: decision.LimitReached,
		Narrative:    decision.Narrative,
	}
	if decision.LimitReached || len(decision.Admitted) == 0 {
		r.finish(summary)
		return
	}

	r.status(StateEnriching, 0)
	for res := range cfg.Enricher.Run(context.WithoutCancel(r.ctx), decision.Admitted) {
		if res.Err != nil {
			summary.Failed++
			r.emit(Event{
				Type:    EventBookFailed,
				Title:   res.Record.Title,
				Failure: &Failure{Kind: KindPersist, Message: "Couldn't save \"" + res.Record.Title + "\" to your library.", Retryable: true, Err: res.Err},
			})
			continue
		}
		summary.Persisted++
		book := res.Record
		r.emit(Event{Type: EventBookEnriched, Book: &book})
	}

	r.finish(summary)
}

// analyze calls the vision service through the retry policy. Every attempt
// asks the shared rate limiter first; a denial is fatal for the scan.
func (r *scanRun) analyze(image []byte) (string, error) {
	cfg := r.o.cfg
	policy := cfg.Retry
	observe := policy.Observe
	policy.Observe = func(attempt int, latency time.Duration, err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.VisionAttempts.WithLabelValues(outcome).Inc()
		metrics.VisionLatency.Observe(latency.Seconds())
		slog.Debug("Vision attempt finished", "scan_id", r.scanID, "attempt", attempt, "latency", latency, "err", err)
		if observe != nil {
			observe(attempt, latency, err)
		}
		if err != nil && uint(attempt) <= policy.MaxRetries && policy.Classify(err) == retry.Transient {
			r.status(StateRetrying, attempt)
		}
	}

	attempt := 0
	return retry.Execute(r.ctx, policy, func(ctx context.Context) (string, error) {
		attempt++
		r.status(StateInFlight, attempt)
		if cfg.Gate != nil && !cfg.Gate.TryAcquire() {
			return "", &providers.RateLimitedError{Caller: "vision"}
		}
		return cfg.Vision.Analyze(ctx, image)
	})
}
