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

	"github.com/sells-group/terrasight/internal/db"
	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/resilience"
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

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scenes (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id  TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL,
	cloud_cover DOUBLE PRECISION NOT NULL,
	footprint   TEXT NOT NULL,
	center_lon  DOUBLE PRECISION NOT NULL,
	center_lat  DOUBLE PRECISION NOT NULL,
	metadata    JSONB,
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS index_results (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	scene_id    TEXT NOT NULL REFERENCES scenes(id),
	index_type  TEXT NOT NULL,
	mean        DOUBLE PRECISION NOT NULL,
	min         DOUBLE PRECISION NOT NULL,
	max         DOUBLE PRECISION NOT NULL,
	std_dev     DOUBLE PRECISION NOT NULL,
	median      DOUBLE PRECISION NOT NULL,
	category    TEXT NOT NULL,
	quality     DOUBLE PRECISION NOT NULL,
	method      TEXT NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL,
	UNIQUE(scene_id, index_type)
);

CREATE TABLE IF NOT EXISTS regions (
	name       TEXT PRIMARY KEY,
	boundary   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS region_statistics (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	region_name  TEXT NOT NULL REFERENCES regions(name),
	date         TEXT NOT NULL,
	index_type   TEXT NOT NULL,
	mean         DOUBLE PRECISION NOT NULL,
	min          DOUBLE PRECISION NOT NULL,
	max          DOUBLE PRECISION NOT NULL,
	std_dev      DOUBLE PRECISION NOT NULL,
	sample_count INTEGER NOT NULL,
	computed_at  TIMESTAMPTZ NOT NULL,
	UNIQUE(region_name, date, index_type)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	triggered_by     TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ,
	scenes_found     INTEGER NOT NULL DEFAULT 0,
	scenes_new       INTEGER NOT NULL DEFAULT 0,
	scenes_processed INTEGER NOT NULL DEFAULT 0,
	error_count      INTEGER NOT NULL DEFAULT 0,
	errors           JSONB
);

CREATE INDEX IF NOT EXISTS idx_scenes_acquired_at ON scenes(acquired_at);
CREATE INDEX IF NOT EXISTS idx_index_results_scene ON index_results(scene_id);
CREATE INDEX IF NOT EXISTS idx_region_stats_region_date ON region_statistics(region_name, date DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON pipeline_runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return resilience.Storage("postgres: migrate", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertScene(ctx context.Context, scene *model.Scene) (bool, error) {
	var metaJSON []byte
	if scene.Metadata != nil {
		b, err := json.Marshal(scene.Metadata)
		if err != nil {
			return false, eris.Wrap(err, "postgres: marshal scene metadata")
		}
		metaJSON = b
	}

	var existingID string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM scenes WHERE product_id = $1`, scene.ProductID,
	).Scan(&existingID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if scene.ID == "" {
			scene.ID = uuid.New().String()
		}
		scene.IngestedAt = time.Now().UTC()
		_, err = s.pool.Exec(ctx,
			`INSERT INTO scenes (id, product_id, title, acquired_at, cloud_cover, footprint, center_lon, center_lat, metadata, ingested_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			scene.ID, scene.ProductID, scene.Title, scene.AcquiredAt.UTC(), scene.CloudCover,
			scene.Footprint, scene.CenterLon, scene.CenterLat, metaJSON, scene.IngestedAt,
		)
		if err != nil {
			return false, resilience.Storage("postgres: insert scene", err)
		}
		return true, nil

	case err != nil:
		return false, resilience.Storage("postgres: lookup scene", err)

	default:
		scene.ID = existingID
		_, err = s.pool.Exec(ctx,
			`UPDATE scenes SET title = $1, acquired_at = $2, cloud_cover = $3, footprint = $4, center_lon = $5, center_lat = $6, metadata = $7
			 WHERE id = $8`,
			scene.Title, scene.AcquiredAt.UTC(), scene.CloudCover, scene.Footprint,
			scene.CenterLon, scene.CenterLat, metaJSON, existingID,
		)
		if err != nil {
			return false, resilience.Storage("postgres: update scene", err)
		}
		return false, nil
	}
}

func (s *PostgresStore) GetSceneByProductID(ctx context.Context, productID string) (*model.Scene, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, product_id, title, acquired_at, cloud_cover, footprint, center_lon, center_lat, metadata, ingested_at
		 FROM scenes WHERE product_id = $1`,
		productID,
	)
	sc, err := scanPGScene(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.Storage("postgres: get scene", err)
	}
	return sc, nil
}

func (s *PostgresStore) ListScenes(ctx context.Context, filter SceneFilter) ([]model.Scene, error) {
	query := `SELECT id, product_id, title, acquired_at, cloud_cover, footprint, center_lon, center_lat, metadata, ingested_at
	 FROM scenes WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Since != nil {
		query += ` AND acquired_at >= ` + arg(filter.Since.UTC())
	}
	if filter.Until != nil {
		query += ` AND acquired_at < ` + arg(filter.Until.UTC())
	}
	query += ` ORDER BY acquired_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, resilience.Storage("postgres: list scenes", err)
	}
	defer rows.Close()

	var scenes []model.Scene
	for rows.Next() {
		sc, err := scanPGScene(rows)
		if err != nil {
			return nil, resilience.Storage("postgres: scan scene", err)
		}
		scenes = append(scenes, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.Storage("postgres: list scenes iterate", err)
	}
	return scenes, nil
}

func (s *PostgresStore) UpsertIndexResult(ctx context.Context, r *model.IndexResult) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.ComputedAt.IsZero() {
		r.ComputedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO index_results (id, scene_id, index_type, mean, min, max, std_dev, median, category, quality, method, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (scene_id, index_type) DO UPDATE SET
		   mean = EXCLUDED.mean, min = EXCLUDED.min, max = EXCLUDED.max,
		   std_dev = EXCLUDED.std_dev, median = EXCLUDED.median,
		   category = EXCLUDED.category, quality = EXCLUDED.quality,
		   method = EXCLUDED.method, computed_at = EXCLUDED.computed_at`,
		r.ID, r.SceneID, string(r.Index), r.Mean, r.Min, r.Max, r.StdDev, r.Median,
		r.Category, r.Quality, string(r.Method), r.ComputedAt,
	)
	if err != nil {
		return resilience.Storage("postgres: upsert index result", err)
	}
	return nil
}

func (s *PostgresStore) GetIndexResult(ctx context.Context, sceneID string, idx model.IndexType) (*model.IndexResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, scene_id, index_type, mean, min, max, std_dev, median, category, quality, method, computed_at
		 FROM index_results WHERE scene_id = $1 AND index_type = $2`,
		sceneID, string(idx),
	)
	r, err := scanIndexResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.Storage("postgres: get index result", err)
	}
	return r, nil
}

func (s *PostgresStore) SceneResultsForDate(ctx context.Context, date string, idx model.IndexType) ([]model.SceneResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sc.product_id, sc.footprint, sc.center_lon, sc.center_lat, sc.cloud_cover,
		        ir.id, ir.scene_id, ir.index_type, ir.mean, ir.min, ir.max, ir.std_dev, ir.median,
		        ir.category, ir.quality, ir.method, ir.computed_at
		 FROM index_results ir
		 JOIN scenes sc ON sc.id = ir.scene_id
		 WHERE to_char(sc.acquired_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') = $1 AND ir.index_type = $2
		 ORDER BY sc.acquired_at`,
		date, string(idx),
	)
	if err != nil {
		return nil, resilience.Storage("postgres: scene results for date", err)
	}
	defer rows.Close()

	var results []model.SceneResult
	for rows.Next() {
		var sr model.SceneResult
		var indexType, method string
		err := rows.Scan(
			&sr.ProductID, &sr.Footprint, &sr.CenterLon, &sr.CenterLat, &sr.CloudCover,
			&sr.Result.ID, &sr.Result.SceneID, &indexType, &sr.Result.Mean, &sr.Result.Min,
			&sr.Result.Max, &sr.Result.StdDev, &sr.Result.Median, &sr.Result.Category,
			&sr.Result.Quality, &method, &sr.Result.ComputedAt,
		)
		if err != nil {
			return nil, resilience.Storage("postgres: scan scene result", err)
		}
		sr.Result.Index = model.IndexType(indexType)
		sr.Result.Method = model.CalcMethod(method)
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.Storage("postgres: scene results iterate", err)
	}
	return results, nil
}

func (s *PostgresStore) UpsertRegion(ctx context.Context, region *model.Region) error {
	if region.CreatedAt.IsZero() {
		region.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO regions (name, boundary, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET boundary = EXCLUDED.boundary`,
		region.Name, region.Boundary, region.CreatedAt,
	)
	if err != nil {
		return resilience.Storage("postgres: upsert region", err)
	}
	return nil
}

func (s *PostgresStore) GetRegion(ctx context.Context, name string) (*model.Region, error) {
	var r model.Region
	err := s.pool.QueryRow(ctx,
		`SELECT name, boundary, created_at FROM regions WHERE name = $1`, name,
	).Scan(&r.Name, &r.Boundary, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.Storage("postgres: get region", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListRegions(ctx context.Context) ([]model.Region, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, boundary, created_at FROM regions ORDER BY name`,
	)
	if err != nil {
		return nil, resilience.Storage("postgres: list regions", err)
	}
	defer rows.Close()

	var regions []model.Region
	for rows.Next() {
		var r model.Region
		if err := rows.Scan(&r.Name, &r.Boundary, &r.CreatedAt); err != nil {
			return nil, resilience.Storage("postgres: scan region", err)
		}
		regions = append(regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.Storage("postgres: list regions iterate", err)
	}
	return regions, nil
}

func (s *PostgresStore) UpsertRegionStatistic(ctx context.Context, st *model.RegionStatistic) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.ComputedAt.IsZero() {
		st.ComputedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO region_statistics (id, region_name, date, index_type, mean, min, max, std_dev, sample_count, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (region_name, date, index_type) DO UPDATE SET
		   mean = EXCLUDED.mean, min = EXCLUDED.min, max = EXCLUDED.max,
		   std_dev = EXCLUDED.std_dev, sample_count = EXCLUDED.sample_count,
		   computed_at = EXCLUDED.computed_at`,
		st.ID, st.RegionName, st.Date, string(st.Index), st.Mean, st.Min, st.Max,
		st.StdDev, st.SampleCount, st.ComputedAt,
	)
	if err != nil {
		return resilience.Storage("postgres: upsert region statistic", err)
	}
	return nil
}

func (s *PostgresStore) RegionStatisticsForDate(ctx context.Context, date string, idx model.IndexType) ([]model.RegionStatistic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, region_name, date, index_type, mean, min, max, std_dev, sample_count, computed_at
		 FROM region_statistics WHERE date = $1 AND index_type = $2 ORDER BY region_name`,
		date, string(idx),
	)
	if err != nil {
		return nil, resilience.Storage("postgres: region statistics for date", err)
	}
	defer rows.Close()
	return collectPGRegionStats(rows)
}

func (s *PostgresStore) RegionSeries(ctx context.Context, regionName string, idx model.IndexType, limit int) ([]model.RegionStatistic, error) {
	if limit <= 0 {
		limit = 90
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, region_name, date, index_type, mean, min, max, std_dev, sample_count, computed_at
		 FROM region_statistics WHERE region_name = $1 AND index_type = $2
		 ORDER BY date DESC LIMIT $3`,
		regionName, string(idx), limit,
	)
	if err != nil {
		return nil, resilience.Storage("postgres: region series", err)
	}
	defer rows.Close()
	return collectPGRegionStats(rows)
}

func (s *PostgresStore) BeginRun(ctx context.Context, run *model.PipelineRun, staleAfter time.Duration) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.Status = model.RunStatusRunning
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	staleBefore := time.Now().UTC().Add(-staleAfter)
	_, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, finished_at = $2, errors = $3
		 WHERE status = $4 AND started_at <= $5`,
		string(model.RunStatusFailed), time.Now().UTC(), []byte(`["run abandoned: exceeded stale grace period"]`),
		string(model.RunStatusRunning), staleBefore,
	)
	if err != nil {
		return resilience.Storage("postgres: expire stale runs", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, triggered_by, started_at)
		 SELECT $1, $2, $3, $4
		 WHERE NOT EXISTS (SELECT 1 FROM pipeline_runs WHERE status = $5)`,
		run.ID, string(run.Status), string(run.Trigger), run.StartedAt,
		string(model.RunStatusRunning),
	)
	if err != nil {
		return resilience.Storage("postgres: begin run", err)
	}
	if tag.RowsAffected() == 0 {
		return resilience.ErrAlreadyRunning
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.PipelineRun) error {
	errsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run errors")
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, finished_at = $2, scenes_found = $3, scenes_new = $4,
		   scenes_processed = $5, error_count = $6, errors = $7
		 WHERE id = $8`,
		string(run.Status), *run.FinishedAt, run.ScenesFound, run.ScenesNew,
		run.ScenesProcessed, run.ErrorCount, errsJSON, run.ID,
	)
	if err != nil {
		return resilience.Storage("postgres: finish run", err)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, triggered_by, started_at, finished_at, scenes_found, scenes_new, scenes_processed, error_count, errors
		 FROM pipeline_runs ORDER BY started_at DESC LIMIT 1`,
	)
	r, err := scanPGRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.Storage("postgres: latest run", err)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, status, triggered_by, started_at, finished_at, scenes_found, scenes_new, scenes_processed, error_count, errors
	 FROM pipeline_runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, resilience.Storage("postgres: list runs", err)
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, resilience.Storage("postgres: scan run", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.Storage("postgres: list runs iterate", err)
	}
	return runs, nil
}

func (s *PostgresStore) RunCounters(ctx context.Context) (total, succeeded, failed int, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		   COALESCE(SUM(CASE WHEN status = $1 THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status = $2 THEN 1 ELSE 0 END), 0)
		 FROM pipeline_runs`,
		string(model.RunStatusSucceeded), string(model.RunStatusFailed),
	).Scan(&total, &succeeded, &failed)
	if err != nil {
		return 0, 0, 0, resilience.Storage("postgres: run counters", err)
	}
	return total, succeeded, failed, nil
}

// helpers

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func scanPGScene(row scannable) (*model.Scene, error) {
	var sc model.Scene
	var metaJSON []byte

	err := row.Scan(&sc.ID, &sc.ProductID, &sc.Title, &sc.AcquiredAt, &sc.CloudCover,
		&sc.Footprint, &sc.CenterLon, &sc.CenterLat, &metaJSON, &sc.IngestedAt)
	if err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &sc.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal scene metadata")
		}
	}
	return &sc, nil
}

func scanPGRun(row scannable) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var status, trigger string
	var finishedAt *time.Time
	var errsJSON []byte

	err := row.Scan(&r.ID, &status, &trigger, &r.StartedAt, &finishedAt,
		&r.ScenesFound, &r.ScenesNew, &r.ScenesProcessed, &r.ErrorCount, &errsJSON)
	if err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.Trigger = model.RunTrigger(trigger)
	r.FinishedAt = finishedAt
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &r.Errors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run errors")
		}
	}
	return &r, nil
}

func collectPGRegionStats(rows pgx.Rows) ([]model.RegionStatistic, error) {
	var stats []model.RegionStatistic
	for rows.Next() {
		var st model.RegionStatistic
		var indexType string
		err := rows.Scan(&st.ID, &st.RegionName, &st.Date, &indexType, &st.Mean,
			&st.Min, &st.Max, &st.StdDev, &st.SampleCount, &st.ComputedAt)
		if err != nil {
			return nil, resilience.Storage("postgres: scan region statistic", err)
		}
		st.Index = model.IndexType(indexType)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.Storage("postgres: region statistics iterate", err)
	}
	return stats, nil
}
