package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Timestamps are stored as fixed-width ISO-8601 UTC text. The driver's
// native time.Time binding writes a form SQLite's date() cannot read, which
// would make every calendar-day lookup match nothing.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scenes (
	id          TEXT PRIMARY KEY,
	product_id  TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	acquired_at TEXT NOT NULL,
	cloud_cover REAL NOT NULL,
	footprint   TEXT NOT NULL,
	center_lon  REAL NOT NULL,
	center_lat  REAL NOT NULL,
	metadata    TEXT,
	ingested_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS index_results (
	id          TEXT PRIMARY KEY,
	scene_id    TEXT NOT NULL REFERENCES scenes(id),
	index_type  TEXT NOT NULL,
	mean        REAL NOT NULL,
	min         REAL NOT NULL,
	max         REAL NOT NULL,
	std_dev     REAL NOT NULL,
	median      REAL NOT NULL,
	category    TEXT NOT NULL,
	quality     REAL NOT NULL,
	method      TEXT NOT NULL,
	computed_at TEXT NOT NULL,
	UNIQUE(scene_id, index_type)
);

CREATE TABLE IF NOT EXISTS regions (
	name       TEXT PRIMARY KEY,
	boundary   TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS region_statistics (
	id           TEXT PRIMARY KEY,
	region_name  TEXT NOT NULL REFERENCES regions(name),
	date         TEXT NOT NULL,
	index_type   TEXT NOT NULL,
	mean         REAL NOT NULL,
	min          REAL NOT NULL,
	max          REAL NOT NULL,
	std_dev      REAL NOT NULL,
	sample_count INTEGER NOT NULL,
	computed_at  TEXT NOT NULL,
	UNIQUE(region_name, date, index_type)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	triggered_by     TEXT NOT NULL,
	started_at       TEXT NOT NULL,
	finished_at      TEXT,
	scenes_found     INTEGER NOT NULL DEFAULT 0,
	scenes_new       INTEGER NOT NULL DEFAULT 0,
	scenes_processed INTEGER NOT NULL DEFAULT 0,
	error_count      INTEGER NOT NULL DEFAULT 0,
	errors           TEXT
);

CREATE INDEX IF NOT EXISTS idx_scenes_acquired_at ON scenes(acquired_at);
CREATE INDEX IF NOT EXISTS idx_index_results_scene ON index_results(scene_id);
CREATE INDEX IF NOT EXISTS idx_region_stats_region_date ON region_statistics(region_name, date DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON pipeline_runs(started_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return resilience.Storage("sqlite: migrate", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertScene(ctx context.Context, scene *model.Scene) (bool, error) {
	var metaJSON sql.NullString
	if scene.Metadata != nil {
		b, err := json.Marshal(scene.Metadata)
		if err != nil {
			return false, eris.Wrap(err, "sqlite: marshal scene metadata")
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	var existingID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM scenes WHERE product_id = ?`, scene.ProductID,
	).Scan(&existingID)

	switch {
	case err == sql.ErrNoRows:
		if scene.ID == "" {
			scene.ID = uuid.New().String()
		}
		scene.IngestedAt = time.Now().UTC()
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO scenes (id, product_id, title, acquired_at, cloud_cover, footprint, center_lon, center_lat, metadata, ingested_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			scene.ID, scene.ProductID, scene.Title, encodeTime(scene.AcquiredAt), scene.CloudCover,
			scene.Footprint, scene.CenterLon, scene.CenterLat, metaJSON, encodeTime(scene.IngestedAt),
		)
		if err != nil {
			return false, resilience.Storage("sqlite: insert scene", err)
		}
		return true, nil

	case err != nil:
		return false, resilience.Storage("sqlite: lookup scene", err)

	default:
		scene.ID = existingID
		_, err = s.db.ExecContext(ctx,
			`UPDATE scenes SET title = ?, acquired_at = ?, cloud_cover = ?, footprint = ?, center_lon = ?, center_lat = ?, metadata = ?
			 WHERE id = ?`,
			scene.Title, encodeTime(scene.AcquiredAt), scene.CloudCover, scene.Footprint,
			scene.CenterLon, scene.CenterLat, metaJSON, existingID,
		)
		if err != nil {
			return false, resilience.Storage("sqlite: update scene", err)
		}
		return false, nil
	}
}

func (s *SQLiteStore) GetSceneByProductID(ctx context.Context, productID string) (*model.Scene, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, title, acquired_at, cloud_cover, footprint, center_lon, center_lat, metadata, ingested_at
		 FROM scenes WHERE product_id = ?`,
		productID,
	)
	sc, err := scanScene(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.Storage("sqlite: get scene", err)
	}
	return sc, nil
}

func (s *SQLiteStore) ListScenes(ctx context.Context, filter SceneFilter) ([]model.Scene, error) {
	query := `SELECT id, product_id, title, acquired_at, cloud_cover, footprint, center_lon, center_lat, metadata, ingested_at
	 FROM scenes WHERE 1=1`
	var args []any

	if filter.Since != nil {
		query += ` AND acquired_at >= ?`
		args = append(args, encodeTime(*filter.Since))
	}
	if filter.Until != nil {
		query += ` AND acquired_at < ?`
		args = append(args, encodeTime(*filter.Until))
	}
	query += ` ORDER BY acquired_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, resilience.Storage("sqlite: list scenes", err)
	}
	defer rows.Close()

	var scenes []model.Scene
	for rows.Next() {
		sc, err := scanScene(rows)
		if err != nil {
			return nil, resilience.Storage("sqlite: scan scene", err)
		}
		scenes = append(scenes, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.Storage("sqlite: list scenes iterate", err)
	}
	return scenes, nil
}

func (s *SQLiteStore) UpsertIndexResult(ctx context.Context, r *model.IndexResult) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.ComputedAt.IsZero() {
		r.ComputedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO index_results (id, scene_id, index_type, mean, min, max, std_dev, median, category, quality, method, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(scene_id, index_type) DO UPDATE SET
		   mean = excluded.mean, min = excluded.min, max = excluded.max,
		   std_dev = excluded.std_dev, median = excluded.median,
		   category = excluded.category, quality = excluded.quality,
		   method = excluded.method, computed_at = excluded.computed_at`,
		r.ID, r.SceneID, string(r.Index), r.Mean, r.Min, r.Max, r.StdDev, r.Median,
		r.Category, r.Quality, string(r.Method), encodeTime(r.ComputedAt),
	)
	if err != nil {
		return resilience.Storage("sqlite: upsert index result", err)
	}
	return nil
}

func (s *SQLiteStore) GetIndexResult(ctx context.Context, sceneID string, idx model.IndexType) (*model.IndexResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scene_id, index_type, mean, min, max, std_dev, median, category, quality, method, computed_at
		 FROM index_results WHERE scene_id = ? AND index_type = ?`,
		sceneID, string(idx),
	)
	r, err := scanIndexResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.Storage("sqlite: get index result", err)
	}
	return r, nil
}

func (s *SQLiteStore) SceneResultsForDate(ctx context.Context, date string, idx model.IndexType) ([]model.SceneResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sc.product_id, sc.footprint, sc.center_lon, sc.center_lat, sc.cloud_cover,
		        ir.id, ir.scene_id, ir.index_type, ir.mean, ir.min, ir.max, ir.std_dev, ir.median,
		        ir.category, ir.quality, ir.method, ir.computed_at
		 FROM index_results ir
		 JOIN scenes sc ON sc.id = ir.scene_id
		 WHERE date(sc.acquired_at) = ? AND ir.index_type = ?
		 ORDER BY sc.acquired_at`,
		date, string(idx),
	)
	if err != nil {
		return nil, resilience.Storage("sqlite: scene results for date", err)
	}
	defer rows.Close()

	var results []model.SceneResult
	for rows.Next() {
		var sr model.SceneResult
		var indexType, method, computedAt string
		err := rows.Scan(
			&sr.ProductID, &sr.Footprint, &sr.CenterLon, &sr.CenterLat, &sr.CloudCover,
			&sr.Result.ID, &sr.Result.SceneID, &indexType, &sr.Result.Mean, &sr.Result.Min,
			&sr.Result.Max, &sr.Result.StdDev, &sr.Result.Median, &sr.Result.Category,
			&sr.Result.Quality, &method, &computedAt,
		)
		if err != nil {
			return nil, resilience.Storage("sqlite: scan scene result", err)
		}
		if sr.Result.ComputedAt, err = decodeTime(computedAt); err != nil {
			return nil, resilience.Storage("sqlite: scan scene result", err)
		}
		sr.Result.Index = model.IndexType(indexType)
		sr.Result.Method = model.CalcMethod(method)
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.Storage("sqlite: scene results iterate", err)
	}
	return results, nil
}

func (s *SQLiteStore) UpsertRegion(ctx context.Context, region *model.Region) error {
	if region.CreatedAt.IsZero() {
		region.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO regions (name, boundary, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET boundary = excluded.boundary`,
		region.Name, region.Boundary, encodeTime(region.CreatedAt),
	)
	if err != nil {
		return resilience.Storage("sqlite: upsert region", err)
	}
	return nil
}

func (s *SQLiteStore) GetRegion(ctx context.Context, name string) (*model.Region, error) {
	var r model.Region
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, boundary, created_at FROM regions WHERE name = ?`, name,
	).Scan(&r.Name, &r.Boundary, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.Storage("sqlite: get region", err)
	}
	if r.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, resilience.Storage("sqlite: get region", err)
	}
	return &r, nil
}

func (s *SQLiteStore) ListRegions(ctx context.Context) ([]model.Region, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, boundary, created_at FROM regions ORDER BY name`,
	)
	if err != nil {
		return nil, resilience.Storage("sqlite: list regions", err)
	}
	defer rows.Close()

	var regions []model.Region
	for rows.Next() {
		var r model.Region
		var createdAt string
		if err := rows.Scan(&r.Name, &r.Boundary, &createdAt); err != nil {
			return nil, resilience.Storage("sqlite: scan region", err)
		}
		var err error
		if r.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, resilience.Storage("sqlite: scan region", err)
		}
		regions = append(regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.Storage("sqlite: list regions iterate", err)
	}
	return regions, nil
}

func (s *SQLiteStore) UpsertRegionStatistic(ctx context.Context, st *model.RegionStatistic) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.ComputedAt.IsZero() {
		st.ComputedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO region_statistics (id, region_name, date, index_type, mean, min, max, std_dev, sample_count, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(region_name, date, index_type) DO UPDATE SET
		   mean = excluded.mean, min = excluded.min, max = excluded.max,
		   std_dev = excluded.std_dev, sample_count = excluded.sample_count,
		   computed_at = excluded.computed_at`,
		st.ID, st.RegionName, st.Date, string(st.Index), st.Mean, st.Min, st.Max,
		st.StdDev, st.SampleCount, encodeTime(st.ComputedAt),
	)
	if err != nil {
		return resilience.Storage("sqlite: upsert region statistic", err)
	}
	return nil
}

func (s *SQLiteStore) RegionStatisticsForDate(ctx context.Context, date string, idx model.IndexType) ([]model.RegionStatistic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, region_name, date, index_type, mean, min, max, std_dev, sample_count, computed_at
		 FROM region_statistics WHERE date = ? AND index_type = ? ORDER BY region_name`,
		date, string(idx),
	)
	if err != nil {
		return nil, resilience.Storage("sqlite: region statistics for date", err)
	}
	defer rows.Close()
	return collectRegionStats(rows)
}

func (s *SQLiteStore) RegionSeries(ctx context.Context, regionName string, idx model.IndexType, limit int) ([]model.RegionStatistic, error) {
	if limit <= 0 {
		limit = 90
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, region_name, date, index_type, mean, min, max, std_dev, sample_count, computed_at
		 FROM region_statistics WHERE region_name = ? AND index_type = ?
		 ORDER BY date DESC LIMIT ?`,
		regionName, string(idx), limit,
	)
	if err != nil {
		return nil, resilience.Storage("sqlite: region series", err)
	}
	defer rows.Close()
	return collectRegionStats(rows)
}

func (s *SQLiteStore) BeginRun(ctx context.Context, run *model.PipelineRun, staleAfter time.Duration) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.Status = model.RunStatusRunning
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	// A crashed process leaves its row running forever; fail it past the
	// grace period so new runs are not blocked.
	staleBefore := time.Now().UTC().Add(-staleAfter)
	_, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, finished_at = ?, errors = ?
		 WHERE status = ? AND started_at <= ?`,
		string(model.RunStatusFailed), encodeTime(time.Now()), `["run abandoned: exceeded stale grace period"]`,
		string(model.RunStatusRunning), encodeTime(staleBefore),
	)
	if err != nil {
		return resilience.Storage("sqlite: expire stale runs", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, triggered_by, started_at)
		 SELECT ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM pipeline_runs WHERE status = ?)`,
		run.ID, string(run.Status), string(run.Trigger), encodeTime(run.StartedAt),
		string(model.RunStatusRunning),
	)
	if err != nil {
		return resilience.Storage("sqlite: begin run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return resilience.Storage("sqlite: begin run rows affected", err)
	}
	if n == 0 {
		return resilience.ErrAlreadyRunning
	}
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.PipelineRun) error {
	errsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run errors")
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, finished_at = ?, scenes_found = ?, scenes_new = ?,
		   scenes_processed = ?, error_count = ?, errors = ?
		 WHERE id = ?`,
		string(run.Status), encodeTime(*run.FinishedAt), run.ScenesFound, run.ScenesNew,
		run.ScenesProcessed, run.ErrorCount, string(errsJSON), run.ID,
	)
	if err != nil {
		return resilience.Storage("sqlite: finish run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return resilience.Storage("sqlite: finish run rows affected", err)
	}
	if n == 0 {
		return eris.Errorf("sqlite: run not found: %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, triggered_by, started_at, finished_at, scenes_found, scenes_new, scenes_processed, error_count, errors
		 FROM pipeline_runs ORDER BY started_at DESC LIMIT 1`,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.Storage("sqlite: latest run", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, status, triggered_by, started_at, finished_at, scenes_found, scenes_new, scenes_processed, error_count, errors
	 FROM pipeline_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, resilience.Storage("sqlite: list runs", err)
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, resilience.Storage("sqlite: scan run", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.Storage("sqlite: list runs iterate", err)
	}
	return runs, nil
}

func (s *SQLiteStore) RunCounters(ctx context.Context) (total, succeeded, failed int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		   COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM pipeline_runs`,
		string(model.RunStatusSucceeded), string(model.RunStatusFailed),
	).Scan(&total, &succeeded, &failed)
	if err != nil {
		return 0, 0, 0, resilience.Storage("sqlite: run counters", err)
	}
	return total, succeeded, failed, nil
}

// helpers

// sqliteTimeLayout is fixed width, so lexicographic comparison and ORDER BY
// on timestamp columns match chronological order, and date() can read it.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

func encodeTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func decodeTime(s string) (time.Time, error) {
	for _, layout := range []string{
		sqliteTimeLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("sqlite: unparseable timestamp %q", s)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanScene(row scannable) (*model.Scene, error) {
	var sc model.Scene
	var metaJSON sql.NullString
	var acquiredAt, ingestedAt string

	err := row.Scan(&sc.ID, &sc.ProductID, &sc.Title, &acquiredAt, &sc.CloudCover,
		&sc.Footprint, &sc.CenterLon, &sc.CenterLat, &metaJSON, &ingestedAt)
	if err != nil {
		return nil, err
	}
	if sc.AcquiredAt, err = decodeTime(acquiredAt); err != nil {
		return nil, err
	}
	if sc.IngestedAt, err = decodeTime(ingestedAt); err != nil {
		return nil, err
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &sc.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal scene metadata")
		}
	}
	return &sc, nil
}

func scanIndexResult(row scannable) (*model.IndexResult, error) {
	var r model.IndexResult
	var indexType, method, computedAt string

	err := row.Scan(&r.ID, &r.SceneID, &indexType, &r.Mean, &r.Min, &r.Max,
		&r.StdDev, &r.Median, &r.Category, &r.Quality, &method, &computedAt)
	if err != nil {
		return nil, err
	}
	if r.ComputedAt, err = decodeTime(computedAt); err != nil {
		return nil, err
	}
	r.Index = model.IndexType(indexType)
	r.Method = model.CalcMethod(method)
	return &r, nil
}

func scanRun(row scannable) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var status, trigger, startedAt string
	var finishedAt sql.NullString
	var errsJSON sql.NullString

	err := row.Scan(&r.ID, &status, &trigger, &startedAt, &finishedAt,
		&r.ScenesFound, &r.ScenesNew, &r.ScenesProcessed, &r.ErrorCount, &errsJSON)
	if err != nil {
		return nil, err
	}
	if r.StartedAt, err = decodeTime(startedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.Trigger = model.RunTrigger(trigger)
	if finishedAt.Valid {
		t, err := decodeTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		r.FinishedAt = &t
	}
	if errsJSON.Valid && errsJSON.String != "" {
		if err := json.Unmarshal([]byte(errsJSON.String), &r.Errors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run errors")
		}
	}
	return &r, nil
}

func collectRegionStats(rows *sql.Rows) ([]model.RegionStatistic, error) {
	var stats []model.RegionStatistic
	for rows.Next() {
		var st model.RegionStatistic
		var indexType, computedAt string
		err := rows.Scan(&st.ID, &st.RegionName, &st.Date, &indexType, &st.Mean,
			&st.Min, &st.Max, &st.StdDev, &st.SampleCount, &computedAt)
		if err != nil {
			return nil, resilience.Storage("sqlite: scan region statistic", err)
		}
		if st.ComputedAt, err = decodeTime(computedAt); err != nil {
			return nil, resilience.Storage("sqlite: scan region statistic", err)
		}
		st.Index = model.IndexType(indexType)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.Storage("sqlite: region statistics iterate", err)
	}
	return stats, nil
}
