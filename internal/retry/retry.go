// Package retry is the one retrying-call wrapper used for every remote
// lookup, query and write: a fixed number of attempts with a constant delay
// between them, retrying only errors the policy classifies as retryable.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vthunder/worklog-sync/internal/logging"
)

// Policy describes how a call is retried
type Policy struct {
	Name     string        // label for log lines, e.g. "lookup"
	Attempts int           // total attempts including the first (min 1)
	Delay    time.Duration // fixed wait between attempts

	// Retryable decides whether a failed attempt is worth repeating.
	// nil retries every error.
	Retryable func(error) bool
}

// newBackoff returns a fresh BackOff; implementations are stateful
func (p Policy) newBackoff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1))
	return backoff.WithContext(bo, ctx)
}

func (p Policy) classify(err error) error {
	if err != nil && p.Retryable != nil && !p.Retryable(err) {
		return backoff.Permanent(err)
	}
	return err
}

func (p Policy) notify(attempt *int) backoff.Notify {
	return func(err error, next time.Duration) {
		*attempt++
		logging.Debug("retry", "%s attempt %d/%d failed, retrying in %s: %v",
			p.Name, *attempt, p.Attempts, next, err)
	}
}

// Do runs op until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		return p.classify(op())
	}, p.newBackoff(ctx), p.notify(&attempt))
}

// Value is Do for operations that produce a result
func Value[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := op()
		return v, p.classify(err)
	}, p.newBackoff(ctx), p.notify(&attempt))
}

// Call has the shape of store.Caller so a policy can wrap paginated queries
func (p Policy) Call(ctx context.Context, op func() error) error {
	return Do(ctx, p, op)
}
