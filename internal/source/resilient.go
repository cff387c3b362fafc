package source

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/phasing/internal/schedule"
)

// RetryConfig configures exponential backoff retry and the circuit breaker
// around a property source.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time per batch (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
	BreakerFailures     uint32        // Consecutive failures that open the breaker (default 5)
	BreakerTimeout      time.Duration // How long the breaker stays open (default 30s)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
		BreakerFailures:     5,
		BreakerTimeout:      30 * time.Second,
	}
}

// Resilient wraps a PropertySource with retry and a circuit breaker. A batch
// that still fails is returned as an error for the builder to exclude.
type Resilient struct {
	src   schedule.PropertySource
	cb    *gobreaker.CircuitBreaker
	retry RetryConfig
}

// NewResilient wraps src. name labels the breaker in logs.
func NewResilient(name string, src schedule.PropertySource, retry RetryConfig) *Resilient {
	defaults := DefaultRetryConfig()
	if retry.BreakerFailures == 0 {
		retry.BreakerFailures = defaults.BreakerFailures
	}
	if retry.BreakerTimeout <= 0 {
		retry.BreakerTimeout = defaults.BreakerTimeout
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = defaults.InitialInterval
	}
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = defaults.MaxInterval
	}
	if retry.MaxElapsedTime <= 0 {
		retry.MaxElapsedTime = defaults.MaxElapsedTime
	}
	if retry.Multiplier <= 0 {
		retry.Multiplier = defaults.Multiplier
	}

	threshold := retry.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // Allow 3 test requests in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     retry.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// A cancelled build is not a source failure
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &Resilient{src: src, cb: cb, retry: retry}
}

// State returns the breaker state.
func (r *Resilient) State() gobreaker.State {
	return r.cb.State()
}

// GetProperties fetches one batch, retrying transient failures with
// exponential backoff. An open breaker fails immediately.
func (r *Resilient) GetProperties(ctx context.Context, elementIDs []string, filter []string) ([]schedule.PropertyRow, error) {
	var rows []schedule.PropertyRow

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := r.cb.Execute(func() (interface{}, error) {
			return r.src.GetProperties(ctx, elementIDs, filter)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		rows = result.([]schedule.PropertyRow)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retry.InitialInterval
	policy.MaxInterval = r.retry.MaxInterval
	policy.MaxElapsedTime = r.retry.MaxElapsedTime
	policy.Multiplier = r.retry.Multiplier
	policy.RandomizationFactor = r.retry.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return rows, err
}
