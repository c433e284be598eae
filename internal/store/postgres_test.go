package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetSceneByProductID_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, product_id, title, acquired_at`).
		WithArgs("missing-product").
		WillReturnError(pgx.ErrNoRows)

	sc, err := s.GetSceneByProductID(context.Background(), "missing-product")
	require.NoError(t, err)
	assert.Nil(t, sc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertScene_Insert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM scenes WHERE product_id = \$1`).
		WithArgs("prod-new").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO scenes`).
		WithArgs(pgxmock.AnyArg(), "prod-new", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := s.UpsertScene(context.Background(), &model.Scene{
		ProductID:  "prod-new",
		Title:      "S2A_MSIL2A_prod-new",
		AcquiredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertScene_Update(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM scenes WHERE product_id = \$1`).
		WithArgs("prod-known").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("scene-1"))
	mock.ExpectExec(`UPDATE scenes SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "scene-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sc := &model.Scene{ProductID: "prod-known", AcquiredAt: time.Now().UTC()}
	inserted, err := s.UpsertScene(context.Background(), sc)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "scene-1", sc.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertIndexResult_OnConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO index_results .* ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), "scene-1", "vegetation", pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"moderate", pgxmock.AnyArg(), "exact", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertIndexResult(context.Background(), &model.IndexResult{
		SceneID: "scene-1", Index: model.IndexVegetation,
		Mean: 0.42, Category: "moderate", Method: model.MethodExact,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BeginRun_AlreadyRunning(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_runs SET status`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO pipeline_runs`).
		WithArgs(pgxmock.AnyArg(), "running", "manual", pgxmock.AnyArg(), "running").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.BeginRun(context.Background(), &model.PipelineRun{Trigger: model.TriggerManual}, time.Hour)
	assert.ErrorIs(t, err, resilience.ErrAlreadyRunning)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BeginRun_Inserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_runs SET status`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO pipeline_runs`).
		WithArgs(pgxmock.AnyArg(), "running", "scheduled", pgxmock.AnyArg(), "running").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := &model.PipelineRun{Trigger: model.TriggerScheduled}
	require.NoError(t, s.BeginRun(context.Background(), run, time.Hour))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RegionSeries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "region_name", "date", "index_type", "mean", "min", "max", "std_dev", "sample_count", "computed_at",
	}).
		AddRow("st-2", "Trnava", "2026-08-12", "vegetation", 0.5, 0.2, 0.8, 0.1, 4, now).
		AddRow("st-1", "Trnava", "2026-08-11", "vegetation", 0.4, 0.1, 0.7, 0.1, 3, now)

	mock.ExpectQuery(`SELECT id, region_name, date, index_type`).
		WithArgs("Trnava", "vegetation", 30).
		WillReturnRows(rows)

	series, err := s.RegionSeries(context.Background(), "Trnava", model.IndexVegetation, 30)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "2026-08-12", series[0].Date)
	assert.Equal(t, model.IndexVegetation, series[0].Index)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RunCounters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("succeeded", "failed").
		WillReturnRows(pgxmock.NewRows([]string{"count", "succeeded", "failed"}).AddRow(5, 3, 2))

	total, succeeded, failed, err := s.RunCounters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 2, failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StorageErrorWrapped(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT name, boundary, created_at FROM regions ORDER BY name`).
		WillReturnError(assert.AnError)

	_, err := s.ListRegions(context.Background())
	require.Error(t, err)
	assert.True(t, resilience.IsStorageUnavailable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
