// Package store persists run history, the API response cache, collection
// checkpoints, the dead letter queue and published scores.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/resilience"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Stage  string          `json:"stage,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// ScoreFilter specifies criteria for listing published scores.
type ScoreFilter struct {
	MinScore float64 `json:"min_score,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

// Store defines persistence for the pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, stage, input string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Response cache. GetCached returns nil, nil on a miss.
	GetCached(ctx context.Context, key string) ([]byte, error)
	SetCached(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpired(ctx context.Context) (int, error)

	// Checkpoints
	SaveProgress(ctx context.Context, p model.Progress) error
	LoadProgress(ctx context.Context, stage string) (map[string]model.Progress, error)
	ClearProgress(ctx context.Context, stage string) (int, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Published scores
	SaveScores(ctx context.Context, scores []model.TractScore) (int64, error)
	ListScores(ctx context.Context, filter ScoreFilter) ([]model.TractScore, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver and migrates it.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func runStatus(err error) model.RunStatus {
	if err != nil {
		return model.RunStatusFailed
	}
	return model.RunStatusComplete
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
