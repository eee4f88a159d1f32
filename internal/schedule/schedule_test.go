package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloor(t *testing.T) {
	ts := time.Date(2026, 8, 24, 12, 7, 42, 123, time.UTC)

	assert.Equal(t, time.Date(2026, 8, 24, 12, 7, 0, 0, time.UTC), Floor(ts, time.Minute))
	assert.Equal(t, time.Date(2026, 8, 24, 12, 5, 0, 0, time.UTC), Floor(ts, 5*time.Minute))

	// Non-UTC input is normalized.
	loc := time.FixedZone("X", 3600)
	local := time.Date(2026, 8, 24, 13, 7, 42, 0, loc)
	assert.Equal(t, time.Date(2026, 8, 24, 12, 7, 0, 0, time.UTC), Floor(local, time.Minute))
}

func TestNext(t *testing.T) {
	ts := time.Date(2026, 8, 24, 12, 7, 42, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 24, 12, 8, 0, 0, time.UTC), Next(ts, time.Minute))
	assert.Equal(t, time.Date(2026, 8, 24, 12, 10, 0, 0, time.UTC), Next(ts, 5*time.Minute))

	// A timestamp already on a boundary advances a full interval.
	boundary := time.Date(2026, 8, 24, 12, 5, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 24, 12, 10, 0, 0, time.UTC), Next(boundary, 5*time.Minute))
}

func TestWaitReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, time.Now(), time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitPastBoundaryReturnsImmediately(t *testing.T) {
	// A "now" far in the past means the boundary has long passed.
	start := time.Now()
	err := Wait(context.Background(), start.Add(-time.Hour), time.Minute)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
