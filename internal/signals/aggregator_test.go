package signals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/whaletrack/internal/persistence"
)

type fakeStore struct {
	windows map[string][]persistence.Snapshot // keyed by from-timestamp
	medians map[string]float64
	health  *persistence.IngestHealth
	history []float64

	signals      []persistence.SignalRow
	contributors []persistence.ContributorsRow
}

func (f *fakeStore) WindowSnapshots(ctx context.Context, asset string, from, to time.Time) ([]persistence.Snapshot, error) {
	return f.windows[from.Format(time.RFC3339)], nil
}

func (f *fakeStore) MedianAbsSizes(ctx context.Context, asset string, since time.Time) (map[string]float64, error) {
	return f.medians, nil
}

func (f *fakeStore) LatestHealth(ctx context.Context) (*persistence.IngestHealth, error) {
	return f.health, nil
}

func (f *fakeStore) RecentAlignmentScores(ctx context.Context, asset string, limit int) ([]float64, error) {
	if len(f.history) > limit {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeStore) UpsertSignal(ctx context.Context, row persistence.SignalRow) error {
	f.signals = append(f.signals, row)
	return nil
}

func (f *fakeStore) UpsertContributors(ctx context.Context, row persistence.ContributorsRow) error {
	f.contributors = append(f.contributors, row)
	return nil
}

func snap(ts time.Time, wallet string, szi float64) persistence.Snapshot {
	return persistence.Snapshot{SnapshotTs: ts, WalletID: wallet, Asset: "HYPE", PositionSzi: szi}
}

func TestLatestPerWallet(t *testing.T) {
	t1 := time.Date(2026, 8, 24, 12, 4, 0, 0, time.UTC)
	t0 := t1.Add(-time.Minute)

	// WindowSnapshots orders newest first per wallet.
	latest := LatestPerWallet([]persistence.Snapshot{
		snap(t1, "0xa", 10),
		snap(t0, "0xa", 8),
		snap(t0, "0xb", -3),
	})

	require.Len(t, latest, 2)
	assert.Equal(t, 10.0, latest["0xa"].PositionSzi)
	assert.Equal(t, -3.0, latest["0xb"].PositionSzi)
}

func TestBuildDeltas(t *testing.T) {
	ts := time.Now()
	current := map[string]persistence.Snapshot{
		"0xa": snap(ts, "0xa", 12),
		"0xnew": snap(ts, "0xnew", 5),
	}
	previous := map[string]persistence.Snapshot{
		"0xa": snap(ts.Add(-5*time.Minute), "0xa", 10),
		"0xgone": snap(ts.Add(-5*time.Minute), "0xgone", 7),
	}

	deltas := BuildDeltas(current, previous, "HYPE")
	require.Len(t, deltas, 2)

	// Wallet in both windows carries a delta.
	require.NotNil(t, deltas["0xa"].Delta)
	assert.Equal(t, 2.0, *deltas["0xa"].Delta)
	assert.Equal(t, 10.0, *deltas["0xa"].SziPrevious)

	// Wallet only in the current window has no delta.
	assert.Nil(t, deltas["0xnew"].Delta)
	assert.Nil(t, deltas["0xnew"].SziPrevious)

	// Wallet only in the previous window is omitted.
	_, ok := deltas["0xgone"]
	assert.False(t, ok)
}

func TestAggregateCounts(t *testing.T) {
	signalTs := time.Date(2026, 8, 24, 12, 5, 0, 0, time.UTC)
	curFrom := signalTs.Add(-5 * time.Minute)
	prevFrom := signalTs.Add(-10 * time.Minute)

	store := &fakeStore{windows: map[string][]persistence.Snapshot{
		curFrom.Format(time.RFC3339): {
			snap(signalTs, "0xa", 12),
			snap(signalTs, "0xb", 5),
		},
		prevFrom.Format(time.RFC3339): {
			snap(curFrom, "0xa", 10),
		},
	}}

	agg, err := Aggregate(context.Background(), store, signalTs, "HYPE")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.WalletCount)
	assert.Equal(t, 1, agg.MissingCount)
}

func TestCheckSignalLock(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		health *persistence.IngestHealth
		want   bool
	}{
		{"no health row locks", nil, false},
		{"stale locks", &persistence.IngestHealth{HealthState: persistence.HealthStale, SnapshotStatus: persistence.StatusSuccess}, false},
		{"failed snapshot locks", &persistence.IngestHealth{HealthState: persistence.HealthHealthy, SnapshotStatus: persistence.StatusFailed}, false},
		{"healthy passes", &persistence.IngestHealth{HealthState: persistence.HealthHealthy, SnapshotStatus: persistence.StatusSuccess, LastSuccessSnapshotTs: &now}, true},
		{"degraded partial passes", &persistence.IngestHealth{HealthState: persistence.HealthDegraded, SnapshotStatus: persistence.StatusPartial}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CheckSignalLock(context.Background(), &fakeStore{health: tt.health})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeAssetPersistsSignalAndContributors(t *testing.T) {
	signalTs := time.Date(2026, 8, 24, 12, 5, 0, 0, time.UTC)
	curFrom := signalTs.Add(-5 * time.Minute)
	prevFrom := signalTs.Add(-10 * time.Minute)

	store := &fakeStore{
		windows: map[string][]persistence.Snapshot{
			curFrom.Format(time.RFC3339): {
				snap(signalTs, "0xa", 12),
				snap(signalTs, "0xb", -5),
				snap(signalTs, "0xc", 3),
			},
			prevFrom.Format(time.RFC3339): {
				snap(curFrom, "0xa", 10), // adder long
				snap(curFrom, "0xb", -4), // adder short
				snap(curFrom, "0xc", 3),  // flat
			},
		},
		medians: map[string]float64{"0xa": 10, "0xb": 4, "0xc": 3},
		history: []float64{50, 50},
	}

	r := NewRunner(store, nil, nil, []string{"HYPE"}, 5*time.Minute)
	res, err := r.computeAsset(context.Background(), signalTs, "HYPE")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Counts.Total)
	assert.Equal(t, 1, res.Counts.AdderLong)
	assert.Equal(t, 1, res.Counts.AdderShort)
	assert.Equal(t, 1, res.Counts.Flat)

	require.Len(t, store.signals, 1)
	row := store.signals[0]
	assert.Equal(t, signalTs, row.SignalTs)
	assert.Equal(t, "HYPE", row.Asset)
	assert.InDelta(t, 50, row.AlignmentScore, 1e-9)
	assert.Equal(t, "flat", row.AlignmentTrend)
	assert.Equal(t, 3, row.WalletCount)

	require.Len(t, store.contributors, 1)
	assert.Equal(t, 3, store.contributors[0].TotalWallets)
}

func TestComputeAssetSkipsContributorsOnEmptyCohort(t *testing.T) {
	signalTs := time.Date(2026, 8, 24, 12, 5, 0, 0, time.UTC)
	store := &fakeStore{windows: map[string][]persistence.Snapshot{}}

	r := NewRunner(store, nil, nil, []string{"HYPE"}, 5*time.Minute)
	res, err := r.computeAsset(context.Background(), signalTs, "HYPE")
	require.NoError(t, err)

	assert.Equal(t, 0, res.Counts.Total)
	require.Len(t, store.signals, 1)
	assert.InDelta(t, 50, store.signals[0].AlignmentScore, 1e-9)
	assert.Empty(t, store.contributors)
}
