package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAndCompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "places", "tracts.csv", "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	run, err := s.CreateRun(ctx, "places", "tracts.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "boom", pgxmock.AnyArg(), run.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.CompleteRun(ctx, run.ID, model.RunStats{Total: 1, Failed: 1}, errors.New("boom")))

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("complete", pgxmock.AnyArg(), "", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorContains(t, s.CompleteRun(ctx, "missing", model.RunStats{}, nil), "run not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, stage, input, status, stats, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "stage", "input", "status", "stats", "error", "created_at", "updated_at"}).
			AddRow("r1", "mobility", "in.csv", "complete", []byte(`{"total":3,"succeeded":3}`), "", now, now))

	run, err := s.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 3, run.Stats.Succeeded)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	_, err = s.GetRun(context.Background(), "nope")
	assert.ErrorContains(t, err, "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRunsFilters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`AND stage = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("places", "failed", 5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "stage", "input", "status", "stats", "error", "created_at", "updated_at"}))

	runs, err := s.ListRuns(context.Background(), RunFilter{Stage: "places", Status: model.RunStatusFailed, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Cache(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT data FROM response_cache`).WithArgs("k").WillReturnError(pgx.ErrNoRows)
	data, err := s.GetCached(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, data)

	mock.ExpectExec(`INSERT INTO response_cache .* ON CONFLICT`).
		WithArgs("k", []byte("v"), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SetCached(ctx, "k", []byte("v"), time.Hour))

	mock.ExpectExec(`DELETE FROM response_cache`).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Progress(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO progress`).
		WithArgs("places", "5", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SaveProgress(ctx, model.Progress{Stage: "places", TractID: "5", Values: map[string]float64{"nearby_mosques": 2}}))

	mock.ExpectQuery(`SELECT tract_id, vals, collected_at FROM progress`).
		WithArgs("places").
		WillReturnRows(pgxmock.NewRows([]string{"tract_id", "vals", "collected_at"}).
			AddRow("5", []byte(`{"nearby_mosques":2}`), time.Now()))
	got, err := s.LoadProgress(ctx, "places")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got["5"].Values["nearby_mosques"], 0.001)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO dead_letter_queue`).
		WithArgs(pgxmock.AnyArg(), "places", "5", "Dearborn", "503", "transient", 0, 3,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	entry := resilience.NewDLQEntry("places", "5", "Dearborn", resilience.NewTransientError(errors.New("503"), 503), 3, now)
	require.NoError(t, s.EnqueueDLQ(ctx, entry))

	mock.ExpectQuery(`FROM dead_letter_queue WHERE 1=1 AND stage = \$1 ORDER BY next_retry_at ASC LIMIT \$2`).
		WithArgs("places", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "stage", "tract_id", "city", "error", "error_type",
			"retry_count", "max_retries", "next_retry_at", "created_at", "last_failed_at"}).
			AddRow("d1", "places", "5", "Dearborn", "503", "transient", 0, 3, now, now, now))
	entries, err := s.ListDLQ(ctx, resilience.DLQFilter{Stage: "places"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "d1", entries[0].ID)

	mock.ExpectExec(`UPDATE dead_letter_queue`).
		WithArgs(pgxmock.AnyArg(), "x", "d1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorContains(t, s.IncrementDLQRetry(ctx, "d1", now, "x"), "not found")

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM dead_letter_queue`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	n, err := s.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveScoresUsesBulkUpsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_tract_scores"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_tract_scores"}, scoreColumns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "tract_scores"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.SaveScores(context.Background(), []model.TractScore{{TractID: "5", SuccessScore: 0.7}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListScores(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	p := 0.6

	mock.ExpectQuery(`FROM tract_scores WHERE success_score >= \$1`).
		WithArgs(0.5, 10).
		WillReturnRows(pgxmock.NewRows([]string{"tract_id", "run_id", "city", "county_id", "lat", "lon", "success_score", "success_probability"}).
			AddRow("5", "r", "Dearborn", "163", 42.3, -83.2, 0.9, &p))

	got, err := s.ListScores(context.Background(), ScoreFilter{MinScore: 0.5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Probability)
	assert.InDelta(t, 0.6, *got[0].Probability, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
