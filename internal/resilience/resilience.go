// Package resilience provides the circuit breaker that external calls
// (model runtime, vector upserts) are wrapped in, so a failing dependency
// stops being hammered once it trips, rather than timing out on every
// in-flight task.
package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker is a named circuit breaker around one external dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a breaker named for logging/metrics purposes. It opens after
// more than 5 consecutive failures (on the 6th), or a 60% failure ratio once at least 10 requests
// have been seen in the current interval, and stays open for 30s before
// allowing a half-open probe.
func New(name string) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs fn through the breaker. When the breaker is open, fn is not
// called and gobreaker.ErrOpenState is returned.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

// Open reports whether the breaker is currently tripped.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}
