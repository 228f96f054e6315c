package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix milliseconds.
type SQLiteStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, nowFunc: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	input      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'running',
	stats      TEXT NOT NULL DEFAULT '{}',
	error      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS response_cache (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS progress (
	stage        TEXT NOT NULL,
	tract_id     TEXT NOT NULL,
	vals         TEXT NOT NULL,
	collected_at INTEGER NOT NULL,
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
	next_retry_at  INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	last_failed_at INTEGER NOT NULL,
	UNIQUE (stage, tract_id)
);

CREATE TABLE IF NOT EXISTS tract_scores (
	tract_id            TEXT PRIMARY KEY,
	run_id              TEXT NOT NULL DEFAULT '',
	city                TEXT NOT NULL DEFAULT '',
	county_id           TEXT NOT NULL DEFAULT '',
	lat                 REAL NOT NULL,
	lon                 REAL NOT NULL,
	success_score       REAL NOT NULL,
	success_probability REAL
);

CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_tract_scores_score ON tract_scores(success_score DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) now() time.Time {
	return s.nowFunc().UTC()
}

func ms(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMS(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Runs

func (s *SQLiteStore) CreateRun(ctx context.Context, stage, input string) (*model.Run, error) {
	now := s.now()
	run := &model.Run{
		ID:        uuid.New().String(),
		Stage:     stage,
		Input:     input,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, stage, input, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, stage, input, string(run.Status), ms(now), ms(now),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(runStatus(runErr)), string(statsJSON), errString(runErr), ms(s.now()), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, stage, input, status, stats, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, stage, input, status, stats, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, filter.Stage)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// Response cache

func (s *SQLiteStore) GetCached(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM response_cache WHERE key = ? AND expires_at > ?`,
		key, ms(s.now()),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached")
	}
	return data, nil
}

func (s *SQLiteStore) SetCached(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, data, ms(now), ms(now.Add(ttl)),
	)
	return eris.Wrap(err, "sqlite: set cached")
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, ms(s.now()))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// Checkpoints

func (s *SQLiteStore) SaveProgress(ctx context.Context, p model.Progress) error {
	vals, err := json.Marshal(p.Values)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal progress")
	}
	if p.CollectedAt.IsZero() {
		p.CollectedAt = s.now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress (stage, tract_id, vals, collected_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (stage, tract_id) DO UPDATE SET vals = excluded.vals, collected_at = excluded.collected_at`,
		p.Stage, p.TractID, string(vals), ms(p.CollectedAt),
	)
	return eris.Wrapf(err, "sqlite: save progress %s/%s", p.Stage, p.TractID)
}

func (s *SQLiteStore) LoadProgress(ctx context.Context, stage string) (map[string]model.Progress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tract_id, vals, collected_at FROM progress WHERE stage = ?`, stage)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load progress")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]model.Progress)
	for rows.Next() {
		p := model.Progress{Stage: stage}
		var vals string
		var at int64
		if err := rows.Scan(&p.TractID, &vals, &at); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan progress")
		}
		if err := json.Unmarshal([]byte(vals), &p.Values); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal progress")
		}
		p.CollectedAt = fromMS(at)
		out[p.TractID] = p
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load progress iterate")
}

func (s *SQLiteStore) ClearProgress(ctx context.Context, stage string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM progress WHERE stage = ?`, stage)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear progress")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// Dead letter queue

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, stage, tract_id, city, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (stage, tract_id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		e.ID, e.Stage, e.TractID, e.City, e.Error, e.ErrorType, e.RetryCount, e.MaxRetries,
		ms(e.NextRetryAt), ms(e.CreatedAt), ms(e.LastFailedAt),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, stage, tract_id, city, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue WHERE 1=1`
	var args []any
	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, filter.Stage)
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close() //nolint:errcheck

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var next, created, last int64
		if err := rows.Scan(&e.ID, &e.Stage, &e.TractID, &e.City, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &next, &created, &last); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		e.NextRetryAt, e.CreatedAt, e.LastFailedAt = fromMS(next), fromMS(created), fromMS(last)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		ms(nextRetryAt), lastErr, ms(s.now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq_entry", id)
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count dlq")
}

// Published scores

func (s *SQLiteStore) SaveScores(ctx context.Context, scores []model.TractScore) (int64, error) {
	if len(scores) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save scores")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tract_scores (tract_id, run_id, city, county_id, lat, lon, success_score, success_probability)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tract_id) DO UPDATE SET
		   run_id = excluded.run_id, city = excluded.city, county_id = excluded.county_id,
		   lat = excluded.lat, lon = excluded.lon, success_score = excluded.success_score,
		   success_probability = excluded.success_probability`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save scores")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, sc := range scores {
		if _, err := stmt.ExecContext(ctx, sc.TractID, sc.RunID, sc.City, sc.CountyID,
			sc.Lat, sc.Lon, sc.SuccessScore, sc.Probability); err != nil {
			return 0, eris.Wrapf(err, "sqlite: save score %s", sc.TractID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save scores")
	}
	return n, nil
}

func (s *SQLiteStore) ListScores(ctx context.Context, filter ScoreFilter) ([]model.TractScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tract_id, run_id, city, county_id, lat, lon, success_score, success_probability
		 FROM tract_scores WHERE success_score >= ? ORDER BY success_score DESC LIMIT ?`,
		filter.MinScore, listLimit(filter.Limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.TractScore
	for rows.Next() {
		var sc model.TractScore
		var prob sql.NullFloat64
		if err := rows.Scan(&sc.TractID, &sc.RunID, &sc.City, &sc.CountyID,
			&sc.Lat, &sc.Lon, &sc.SuccessScore, &prob); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		if prob.Valid {
			p := prob.Float64
			sc.Probability = &p
		}
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list scores iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var stats string
	var created, updated int64
	if err := row.Scan(&r.ID, &r.Stage, &r.Input, &r.Status, &stats, &r.Error, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run stats")
	}
	r.CreatedAt, r.UpdatedAt = fromMS(created), fromMS(updated)
	return &r, nil
}
