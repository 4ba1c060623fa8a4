package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// pollUntil calls check immediately and then every interval until it
// reports done, fails, or timeout elapses.
func pollUntil(ctx context.Context, operation, id string, interval, timeout time.Duration, check func(ctx context.Context) (bool, error)) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check(pollCtx)
		if err != nil {
			if errors.Is(pollCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return &cbc.TimeoutError{Operation: operation, JobID: id, Err: err}
			}

			return err
		}

		if done {
			return nil
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return fmt.Errorf("%s %s: %w", operation, id, ctx.Err())
			}

			return &cbc.TimeoutError{Operation: operation, JobID: id, Err: pollCtx.Err()}
		case <-ticker.C:
		}
	}
}
