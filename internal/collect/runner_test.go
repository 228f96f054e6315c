package collect

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/resilience"
	"github.com/cafe-compass/compass-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "collect.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRows() []model.Tract {
	return []model.Tract{
		{TractID: "1", City: "Dearborn", Lat: model.Float(42.3), Lon: model.Float(-83.2)},
		{TractID: "2", City: "Dearborn", Lat: model.Float(42.31), Lon: model.Float(-83.2)},
		{TractID: "3", City: "Troy"},
		{TractID: "4", City: "Troy", Lat: model.Float(42.6), Lon: model.Float(-83.1), TransitStops: model.Float(9)},
	}
}

// transitStage sets transit_stops to the tract number, fails tract 2 and
// needs a centroid.
func transitStage(calls *atomic.Int32) Stage {
	return Stage{
		Name: "transit",
		Done: func(t *model.Tract) bool { return t.TransitStops != nil },
		Collect: func(_ context.Context, t *model.Tract) (map[string]float64, error) {
			calls.Add(1)
			if _, err := origin(t); err != nil {
				return nil, err
			}
			if t.TractID == "2" {
				return nil, resilience.NewTransientError(errors.New("overpass: 504"), 504)
			}
			return map[string]float64{ColTransitStops: float64(len(t.TractID) * 10)}, nil
		},
	}
}

func testCollectConfig() config.CollectConfig {
	return config.CollectConfig{Concurrency: 2, Checkpoint: true, DLQMaxRetries: 3, ProgressEvery: 1}
}

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	rows := testRows()
	var calls atomic.Int32

	r := NewRunner(st, testCollectConfig())
	stats, err := r.Run(ctx, transitStage(&calls), rows)
	require.NoError(t, err)

	assert.Equal(t, model.RunStats{Total: 4, Succeeded: 1, Skipped: 2, Failed: 1}, stats)
	assert.Equal(t, int32(3), calls.Load())

	require.NotNil(t, rows[0].TransitStops)
	assert.InDelta(t, 10.0, *rows[0].TransitStops, 1e-9)
	assert.Nil(t, rows[1].TransitStops, "failed tract keeps no value")
	assert.Nil(t, rows[2].TransitStops)
	assert.InDelta(t, 9.0, *rows[3].TransitStops, 1e-9)

	dlq, err := st.ListDLQ(ctx, resilience.DLQFilter{Stage: "transit"})
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, "2", dlq[0].TractID)
	assert.Equal(t, "transient", dlq[0].ErrorType)

	saved, err := st.LoadProgress(ctx, "transit")
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestRunner_RestoresCheckpoints(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.SaveProgress(ctx, model.Progress{
		Stage: "transit", TractID: "1", Values: map[string]float64{ColTransitStops: 42},
	}))

	rows := testRows()
	var calls atomic.Int32
	stats, err := NewRunner(st, testCollectConfig()).Run(ctx, transitStage(&calls), rows)
	require.NoError(t, err)

	assert.InDelta(t, 42.0, *rows[0].TransitStops, 1e-9)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunner_Force(t *testing.T) {
	rows := testRows()
	var calls atomic.Int32
	stats, err := NewRunner(nil, testCollectConfig(), WithForce(true)).Run(context.Background(), transitStage(&calls), rows)
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 2, stats.Succeeded)
	assert.InDelta(t, 10.0, *rows[3].TransitStops, 1e-9)
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stage := Stage{
		Name: "slow",
		Collect: func(ctx context.Context, _ *model.Tract) (map[string]float64, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	_, err := NewRunner(nil, config.CollectConfig{}).Run(ctx, stage, testRows())
	assert.ErrorContains(t, err, "slow interrupted")
}

func TestRunner_Retry(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	rows := testRows()
	var calls atomic.Int32

	clock := time.Now()
	r := NewRunner(st, testCollectConfig(), WithClock(func() time.Time { return clock }))
	_, err := r.Run(ctx, transitStage(&calls), rows)
	require.NoError(t, err)

	// Not due yet.
	stats, err := r.Retry(ctx, transitStage(&calls), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)

	// Due, still failing: rescheduled.
	clock = clock.Add(time.Hour)
	stats, err = r.Retry(ctx, transitStage(&calls), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	dlq, err := st.ListDLQ(ctx, resilience.DLQFilter{Stage: "transit"})
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, 1, dlq[0].RetryCount)

	// Due and fixed: removed from the queue.
	clock = clock.Add(time.Hour)
	fixed := Stage{
		Name: "transit",
		Collect: func(_ context.Context, _ *model.Tract) (map[string]float64, error) {
			return map[string]float64{ColTransitStops: 5}, nil
		},
	}
	stats, err = r.Retry(ctx, fixed, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	assert.InDelta(t, 5.0, *rows[1].TransitStops, 1e-9)
	n, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunner_RetryNeedsStore(t *testing.T) {
	_, err := NewRunner(nil, config.CollectConfig{}).Retry(context.Background(), Stage{Name: "x"}, nil)
	assert.ErrorContains(t, err, "needs a store")
}

func TestApply(t *testing.T) {
	var tr model.Tract
	unknown := Apply(&tr, map[string]float64{ColMosques: 2, ColRent: 1.5, "bogus": 1})
	assert.Equal(t, []string{"bogus"}, unknown)
	assert.InDelta(t, 2.0, *tr.NearbyMosques, 1e-12)
	assert.InDelta(t, 1.5, *tr.AvgRentPerSqft, 1e-12)
}
