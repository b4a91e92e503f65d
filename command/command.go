// Package command contains the write-side handlers. Every handler loads the
// aggregate fresh (snapshot + tail replay), validates the command against
// that state and appends new events under optimistic concurrency. Losing a
// concurrency race triggers a bounded reload-and-retry, never a retry with
// stale preconditions.
package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"github.com/tompro/payday/eventsrc"
)

// ErrConflict is returned when the bounded retries on concurrency conflicts
// are exhausted.
var ErrConflict = errors.New("command conflict: concurrent modification retries exhausted")

const defaultMaxTries = 3

// withConflictRetry runs op, retrying on eventsrc.ErrConcurrency with
// exponential backoff and a bounded number of attempts. op must reload all
// aggregate state on each attempt; retrying with stale state would re-commit
// the very conflict that was just detected.
func withConflictRetry(ctx context.Context, op func(ctx context.Context) error) error {
	operation := func() (any, error) {
		err := op(ctx)
		if err == nil {
			return nil, nil
		}
		var conflict eventsrc.ErrConcurrency
		if errors.As(err, &conflict) {
			return nil, err // retryable
		}
		return nil, backoff.Permanent(err)
	}

	_, err := backoff.Retry(
		ctx,
		operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(defaultMaxTries),
	)
	var conflict eventsrc.ErrConcurrency
	if errors.As(err, &conflict) {
		return fmt.Errorf("%w: %s", ErrConflict, conflict.Msg)
	}
	return err
}
