package collect

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/resilience"
	"github.com/cafe-compass/compass-cli/internal/store"
)

// ErrSkip marks a tract a stage cannot process yet. It is counted as
// skipped, not failed, and never reaches the dead letter queue.
var ErrSkip = eris.New("collect: tract not ready")

// Stage is one per-tract collection step.
type Stage struct {
	Name string
	// Done reports whether t already has this stage's values.
	Done func(t *model.Tract) bool
	// Collect computes the stage's columns for t. It must not modify t.
	Collect func(ctx context.Context, t *model.Tract) (map[string]float64, error)
}

// Runner drives a Stage over the dataset with bounded concurrency.
type Runner struct {
	store         store.Store
	concurrency   int
	checkpoint    bool
	force         bool
	dlqMaxRetries int
	progressEvery int
	now           func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithForce recollects tracts that already have values.
func WithForce(force bool) RunnerOption {
	return func(r *Runner) { r.force = force }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner builds a runner. st may be nil, which disables checkpoints and
// the dead letter queue.
func NewRunner(st store.Store, cfg config.CollectConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:         st,
		concurrency:   max(cfg.Concurrency, 1),
		checkpoint:    cfg.Checkpoint && st != nil,
		dlqMaxRetries: cfg.DLQMaxRetries,
		progressEvery: cfg.ProgressEvery,
		now:           time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type tally struct {
	mu    sync.Mutex
	stats model.RunStats
	done  int
}

func (t *tally) add(fn func(s *model.RunStats)) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.stats)
	t.done++
	return t.done
}

// Run applies stage to every row that still needs it. Checkpointed values
// are restored without calling Collect. A failing tract is logged, queued
// for retry and left without values; only cancellation stops the batch.
func (r *Runner) Run(ctx context.Context, stage Stage, rows []model.Tract) (model.RunStats, error) {
	log := zap.L().With(zap.String("stage", stage.Name))

	restored, err := r.restore(ctx, stage.Name, rows)
	if err != nil {
		return model.RunStats{}, err
	}

	var pending []int
	t := &tally{stats: model.RunStats{Total: len(rows), Skipped: restored.count}}
	for i := range rows {
		if restored.ids[rows[i].TractID] {
			continue
		}
		if !r.force && stage.Done != nil && stage.Done(&rows[i]) {
			t.stats.Skipped++
			continue
		}
		pending = append(pending, i)
	}
	log.Info("stage starting",
		zap.Int("total", len(rows)),
		zap.Int("pending", len(pending)),
		zap.Int("restored", restored.count),
		zap.Int("concurrency", r.concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, i := range pending {
		g.Go(func() error {
			row := &rows[i]
			values, err := stage.Collect(gctx, row)
			switch {
			case err == nil:
			case gctx.Err() != nil:
				return gctx.Err()
			case eris.Is(err, ErrSkip):
				log.Debug("tract skipped", zap.String("tract", row.TractID), zap.Error(err))
				r.progress(log, t.add(func(s *model.RunStats) { s.Skipped++ }), len(pending))
				return nil
			default:
				log.Warn("tract failed", zap.String("tract", row.TractID), zap.String("city", row.City), zap.Error(err))
				r.deadLetter(gctx, log, stage.Name, row, err)
				r.progress(log, t.add(func(s *model.RunStats) { s.Failed++ }), len(pending))
				return nil
			}

			Apply(row, values)
			r.save(gctx, log, stage.Name, row.TractID, values)
			r.progress(log, t.add(func(s *model.RunStats) { s.Succeeded++ }), len(pending))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return t.stats, eris.Wrapf(err, "collect: %s interrupted", stage.Name)
	}

	log.Info("stage complete",
		zap.Int("succeeded", t.stats.Succeeded),
		zap.Int("skipped", t.stats.Skipped),
		zap.Int("failed", t.stats.Failed),
	)
	return t.stats, nil
}

type restoreResult struct {
	ids   map[string]bool
	count int
}

func (r *Runner) restore(ctx context.Context, stage string, rows []model.Tract) (restoreResult, error) {
	res := restoreResult{ids: map[string]bool{}}
	if !r.checkpoint || r.force {
		return res, nil
	}
	saved, err := r.store.LoadProgress(ctx, stage)
	if err != nil {
		return res, eris.Wrapf(err, "collect: load %s checkpoints", stage)
	}
	for i := range rows {
		p, ok := saved[rows[i].TractID]
		if !ok {
			continue
		}
		Apply(&rows[i], p.Values)
		res.ids[rows[i].TractID] = true
		res.count++
	}
	return res, nil
}

func (r *Runner) save(ctx context.Context, log *zap.Logger, stage, tractID string, values map[string]float64) {
	if !r.checkpoint {
		return
	}
	err := r.store.SaveProgress(ctx, model.Progress{Stage: stage, TractID: tractID, Values: values, CollectedAt: r.now().UTC()})
	if err != nil {
		log.Warn("checkpoint failed", zap.String("tract", tractID), zap.Error(err))
	}
}

func (r *Runner) deadLetter(ctx context.Context, log *zap.Logger, stage string, row *model.Tract, cause error) {
	if r.store == nil {
		return
	}
	entry := resilience.NewDLQEntry(stage, row.TractID, row.City, cause, r.dlqMaxRetries, r.now().UTC())
	if err := r.store.EnqueueDLQ(ctx, entry); err != nil {
		log.Error("dlq enqueue failed", zap.String("tract", row.TractID), zap.Error(err))
	}
}

func (r *Runner) progress(log *zap.Logger, done, total int) {
	if r.progressEvery > 0 && (done%r.progressEvery == 0 || done == total) {
		log.Info("stage progress", zap.Int("done", done), zap.Int("of", total))
	}
}

// Retry reruns stage for dead-lettered tracts that are due. Successes are
// applied to rows and removed from the queue; failures are rescheduled
// with backoff.
func (r *Runner) Retry(ctx context.Context, stage Stage, rows []model.Tract) (model.RunStats, error) {
	if r.store == nil {
		return model.RunStats{}, eris.New("collect: retry needs a store")
	}
	entries, err := r.store.ListDLQ(ctx, resilience.DLQFilter{Stage: stage.Name})
	if err != nil {
		return model.RunStats{}, err
	}

	byID := make(map[string]int, len(rows))
	for i := range rows {
		byID[rows[i].TractID] = i
	}

	log := zap.L().With(zap.String("stage", stage.Name), zap.String("mode", "retry"))
	var stats model.RunStats
	now := r.now().UTC()
	for i := range entries {
		e := &entries[i]
		idx, ok := byID[e.TractID]
		if !ok || !e.CanRetry() || e.NextRetryAt.After(now) {
			stats.Skipped++
			continue
		}
		stats.Total++
		row := &rows[idx]
		values, err := stage.Collect(ctx, row)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			next := now.Add(resilience.Backoff(e.RetryCount+1, resilience.DefaultRetryConfig()))
			if err := r.store.IncrementDLQRetry(ctx, e.ID, next, err.Error()); err != nil {
				log.Warn("dlq reschedule failed", zap.String("id", e.ID), zap.Error(err))
			}
			continue
		}
		Apply(row, values)
		r.save(ctx, log, stage.Name, row.TractID, values)
		if err := r.store.RemoveDLQ(ctx, e.ID); err != nil {
			log.Warn("dlq remove failed", zap.String("id", e.ID), zap.Error(err))
		}
		stats.Succeeded++
	}
	log.Info("retry complete", zap.Int("succeeded", stats.Succeeded), zap.Int("failed", stats.Failed), zap.Int("skipped", stats.Skipped))
	return stats, nil
}
