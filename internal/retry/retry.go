// Package retry wraps a single fallible remote call with a bounded number
// of fixed-delay retries. Only errors classified as transient are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	retrygo "github.com/avast/retry-go/v4"

	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
)

// Class tells the controller whether an error may be retried
type Class int

const (
	Transient Class = iota
	Fatal
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "fatal"
}

// Classifier decides whether an error is worth another attempt
type Classifier func(error) Class

// Observer is told about every attempt. It must not influence control flow.
type Observer func(attempt int, latency time.Duration, err error)

// Policy configures Execute
type Policy struct {
	// MaxRetries is the number of attempts allowed after the first one.
	MaxRetries uint
	Delay      time.Duration
	Classify   Classifier
	Observe    Observer
}

// Error is the terminal failure returned by Execute
type Error struct {
	Attempts  int
	Exhausted bool
	Class     Class
	Err       error
}

func (e *Error) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var transientMarkers = []string{
	"network",
	"timeout",
	"timed out",
	"connection",
	"connectivity",
	"unreachable",
	"offline",
	"no such host",
	"temporarily unavailable",
}

// DefaultClassifier treats remote auth, quota, decoding and local
// rate-limit failures as fatal, and network-looking failures as transient.
func DefaultClassifier(err error) Class {
	var (
		authErr    *providers.AuthError
		quotaErr   *providers.QuotaExceededError
		decodeErr  *providers.DecodingError
		limitedErr *providers.RateLimitedError
		networkErr *providers.NetworkError
		netErr     net.Error
	)
	switch {
	case err == nil:
		return Fatal
	case errors.As(err, &authErr), errors.As(err, &quotaErr), errors.As(err, &decodeErr), errors.As(err, &limitedErr):
		return Fatal
	case errors.Is(err, context.Canceled):
		return Fatal
	case errors.As(err, &networkErr), errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return Transient
		}
	}
	return Fatal
}

// Execute runs op until it succeeds, fails fatally, or runs out of retries
func Execute[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	classify := p.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	attempts := 0
	lastClass := Fatal
	result, err := retrygo.DoWithData(
		func() (T, error) {
			attempts++
			start := time.Now()
			v, err := op(ctx)
			if p.Observe != nil {
				p.Observe(attempts, time.Since(start), err)
			}
			if err != nil {
				lastClass = classify(err)
			}
			return v, err
		},
		retrygo.Context(ctx),
		retrygo.Attempts(p.MaxRetries+1),
		retrygo.Delay(p.Delay),
		retrygo.DelayType(retrygo.FixedDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			return classify(err) == Transient
		}),
	)
	if err == nil {
		return result, nil
	}

	var zero T
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return zero, &Error{Attempts: attempts, Class: Fatal, Err: err}
	}
	return zero, &Error{
		Attempts:  attempts,
		Exhausted: lastClass == Transient,
		Class:     lastClass,
		Err:       err,
	}
}
