package ratelimit

import (
	"sync"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/metrics"
)

// Gate is the capability handed to code that makes metered remote calls.
// A false result means skip or degrade, never retry.
type Gate interface {
	TryAcquire() bool
}

// Limiter bounds the number of outbound calls within a fixed window.
// The window resets once its duration has elapsed; it does not slide.
type Limiter struct {
	mu sync.Mutex

	maxCalls int
	window   time.Duration

	count       int
	windowStart time.Time

	now func() time.Time
}

// Status reports current limiter state
type Status struct {
	MaxCalls  int           `json:"max_calls"`
	Used      int           `json:"used"`
	Remaining int           `json:"remaining"`
	Window    time.Duration `json:"window"`
	ResetsAt  time.Time     `json:"resets_at"`
}

// New creates a limiter allowing maxCalls per window
func New(maxCalls int, window time.Duration) *Limiter {
	if maxCalls <= 0 {
		maxCalls = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
	}
	l.windowStart = l.now()
	return l
}

// TryAcquire records a call and returns true if the window has headroom.
// The check and the increment happen under one lock.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll()
	if l.count >= l.maxCalls {
		return false
	}
	l.count++
	return true
}

// Status returns a snapshot of the current window
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll()
	return Status{
		MaxCalls:  l.maxCalls,
		Used:      l.count,
		Remaining: l.maxCalls - l.count,
		Window:    l.window,
		ResetsAt:  l.windowStart.Add(l.window),
	}
}

// For returns a Gate that records each decision under the caller's name
func (l *Limiter) For(caller string) Gate {
	return &namedGate{limiter: l, caller: caller}
}

// roll resets the counter when the window has elapsed. Must be called with lock held.
func (l *Limiter) roll() {
	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.count = 0
		l.windowStart = now
	}
}

type namedGate struct {
	limiter *Limiter
	caller  string
}

func (g *namedGate) TryAcquire() bool {
	ok := g.limiter.TryAcquire()
	outcome := "granted"
	if !ok {
		outcome = "denied"
	}
	metrics.RateLimitDecisions.WithLabelValues(g.caller, outcome).Inc()
	return ok
}
