// Package schedule aligns work to wall-clock boundaries. Snapshots run
// on minute boundaries and signals on 5-minute boundaries, so both
// loops sleep to the next boundary instead of ticking on a free-running
// interval.
package schedule

import (
	"context"
	"time"
)

// Floor truncates t to the start of its interval boundary in UTC.
func Floor(t time.Time, interval time.Duration) time.Time {
	return t.UTC().Truncate(interval)
}

// Next returns the first boundary strictly after t.
func Next(t time.Time, interval time.Duration) time.Time {
	return Floor(t, interval).Add(interval)
}

// Wait sleeps until the next boundary after now, or returns early with
// the context error on cancellation.
func Wait(ctx context.Context, now time.Time, interval time.Duration) error {
	d := time.Until(Next(now, interval))
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
