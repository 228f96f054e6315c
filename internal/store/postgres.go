package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cafe-compass/compass-cli/internal/db"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool exposes the connection pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	input      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'running',
	stats      JSONB NOT NULL DEFAULT '{}',
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS response_cache (
	key        TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS progress (
	stage        TEXT NOT NULL,
	tract_id     TEXT NOT NULL,
	vals         JSONB NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (stage, tract_id)
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	stage          TEXT NOT NULL,
	tract_id       TEXT NOT NULL,
	city           TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (stage, tract_id)
);

CREATE TABLE IF NOT EXISTS tract_scores (
	tract_id            TEXT PRIMARY KEY,
	run_id              TEXT NOT NULL DEFAULT '',
	city                TEXT NOT NULL DEFAULT '',
	county_id           TEXT NOT NULL DEFAULT '',
	lat                 DOUBLE PRECISION NOT NULL,
	lon                 DOUBLE PRECISION NOT NULL,
	success_score       DOUBLE PRECISION NOT NULL,
	success_probability DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_tract_scores_score ON tract_scores(success_score DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Runs

func (s *PostgresStore) CreateRun(ctx context.Context, stage, input string) (*model.Run, error) {
	now := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.New().String(),
		Stage:     stage,
		Input:     input,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, stage, input, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, stage, input, string(run.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(runStatus(runErr)), statsJSON, errString(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, stage, input, status, stats, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: get run: run not found: %s", runID)
	}
	return r, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, stage, input, status, stats, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	if filter.Stage != "" {
		args = append(args, filter.Stage)
		query += fmt.Sprintf(` AND stage = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var stats []byte
	if err := row.Scan(&r.ID, &r.Stage, &r.Input, &status, &stats, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.Status = model.RunStatus(status)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run stats")
		}
	}
	return &r, nil
}

// Response cache

func (s *PostgresStore) GetCached(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM response_cache WHERE key = $1 AND expires_at > now()`, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached")
	}
	return data, nil
}

func (s *PostgresStore) SetCached(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO response_cache (key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		key, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached")
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM response_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired")
	}
	return int(tag.RowsAffected()), nil
}

// Checkpoints

func (s *PostgresStore) SaveProgress(ctx context.Context, p model.Progress) error {
	vals, err := json.Marshal(p.Values)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal progress")
	}
	if p.CollectedAt.IsZero() {
		p.CollectedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO progress (stage, tract_id, vals, collected_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (stage, tract_id) DO UPDATE SET vals = EXCLUDED.vals, collected_at = EXCLUDED.collected_at`,
		p.Stage, p.TractID, vals, p.CollectedAt,
	)
	return eris.Wrapf(err, "postgres: save progress %s/%s", p.Stage, p.TractID)
}

func (s *PostgresStore) LoadProgress(ctx context.Context, stage string) (map[string]model.Progress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tract_id, vals, collected_at FROM progress WHERE stage = $1`, stage)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load progress")
	}
	defer rows.Close()

	out := make(map[string]model.Progress)
	for rows.Next() {
		p := model.Progress{Stage: stage}
		var vals []byte
		if err := rows.Scan(&p.TractID, &vals, &p.CollectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan progress")
		}
		if err := json.Unmarshal(vals, &p.Values); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal progress")
		}
		out[p.TractID] = p
	}
	return out, eris.Wrap(rows.Err(), "postgres: load progress iterate")
}

func (s *PostgresStore) ClearProgress(ctx context.Context, stage string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM progress WHERE stage = $1`, stage)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear progress")
	}
	return int(tag.RowsAffected()), nil
}

// Dead letter queue

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, stage, tract_id, city, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (stage, tract_id) DO UPDATE SET
		   error = EXCLUDED.error, error_type = EXCLUDED.error_type,
		   next_retry_at = EXCLUDED.next_retry_at, last_failed_at = EXCLUDED.last_failed_at`,
		e.ID, e.Stage, e.TractID, e.City, e.Error, e.ErrorType, e.RetryCount, e.MaxRetries,
		e.NextRetryAt, e.CreatedAt, e.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, stage, tract_id, city, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue WHERE 1=1`
	var args []any
	if filter.Stage != "" {
		args = append(args, filter.Stage)
		query += fmt.Sprintf(` AND stage = $%d`, len(args))
	}
	if filter.ErrorType != "" {
		args = append(args, filter.ErrorType)
		query += fmt.Sprintf(` AND error_type = $%d`, len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY next_retry_at ASC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.Stage, &e.TractID, &e.City, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq_entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

// Published scores

var scoreColumns = []string{
	"tract_id", "run_id", "city", "county_id", "lat", "lon", "success_score", "success_probability",
}

func (s *PostgresStore) SaveScores(ctx context.Context, scores []model.TractScore) (int64, error) {
	rows := make([][]any, len(scores))
	for i, sc := range scores {
		rows[i] = []any{sc.TractID, sc.RunID, sc.City, sc.CountyID, sc.Lat, sc.Lon, sc.SuccessScore, sc.Probability}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "tract_scores",
		Columns:      scoreColumns,
		ConflictKeys: []string{"tract_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: save scores")
}

func (s *PostgresStore) ListScores(ctx context.Context, filter ScoreFilter) ([]model.TractScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tract_id, run_id, city, county_id, lat, lon, success_score, success_probability
		 FROM tract_scores WHERE success_score >= $1 ORDER BY success_score DESC LIMIT $2`,
		filter.MinScore, listLimit(filter.Limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var out []model.TractScore
	for rows.Next() {
		var sc model.TractScore
		if err := rows.Scan(&sc.TractID, &sc.RunID, &sc.City, &sc.CountyID,
			&sc.Lat, &sc.Lon, &sc.SuccessScore, &sc.Probability); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list scores iterate")
}
