// Package monitoring watches collection health: run and tract failure
// rates over a lookback window and the dead letter queue depth.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/resilience"
	"github.com/cafe-compass/compass-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of collection health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Tract metrics summed over the same runs.
	TractsTotal   int            `json:"tracts_total"`
	TractsFailed  int            `json:"tracts_failed"`
	TractFailRate float64        `json:"tract_fail_rate"`
	FailedByStage map[string]int `json:"failed_by_stage,omitempty"`

	// DLQ depth.
	DLQDepth     int `json:"dlq_depth"`
	DLQPermanent int `json:"dlq_permanent"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		snap.TractsTotal += r.Stats.Total
		snap.TractsFailed += r.Stats.Failed
		if r.Stats.Failed > 0 {
			if snap.FailedByStage == nil {
				snap.FailedByStage = make(map[string]int)
			}
			snap.FailedByStage[r.Stage] += r.Stats.Failed
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.TractsTotal > 0 {
		snap.TractFailRate = float64(snap.TractsFailed) / float64(snap.TractsTotal)
	}

	depth, err := c.store.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = depth

	permanent, err := c.store.ListDLQ(ctx, resilience.DLQFilter{ErrorType: "permanent", Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list dlq")
	}
	snap.DLQPermanent = len(permanent)

	return snap, nil
}
