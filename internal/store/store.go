// Package store persists scenes, index results, regions, and pipeline runs.
// Two drivers implement the same interface: SQLite for single-node
// deployments and Postgres for shared ones.
package store

import (
	"context"
	"time"

	"github.com/sells-group/terrasight/internal/model"
)

// SceneFilter specifies criteria for listing scenes.
type SceneFilter struct {
	Since  *time.Time `json:"since,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the monitoring pipeline.
// Lookup methods return (nil, nil) when no row matches.
type Store interface {
	// Scenes. UpsertScene reports whether the scene was newly inserted;
	// re-ingesting an existing ProductID refreshes metadata in place.
	UpsertScene(ctx context.Context, scene *model.Scene) (bool, error)
	GetSceneByProductID(ctx context.Context, productID string) (*model.Scene, error)
	ListScenes(ctx context.Context, filter SceneFilter) ([]model.Scene, error)

	// Index results, unique per (scene, index type).
	UpsertIndexResult(ctx context.Context, r *model.IndexResult) error
	GetIndexResult(ctx context.Context, sceneID string, idx model.IndexType) (*model.IndexResult, error)
	SceneResultsForDate(ctx context.Context, date string, idx model.IndexType) ([]model.SceneResult, error)

	// Regions.
	UpsertRegion(ctx context.Context, region *model.Region) error
	GetRegion(ctx context.Context, name string) (*model.Region, error)
	ListRegions(ctx context.Context) ([]model.Region, error)

	// Region statistics, unique per (region, date, index type).
	UpsertRegionStatistic(ctx context.Context, st *model.RegionStatistic) error
	RegionStatisticsForDate(ctx context.Context, date string, idx model.IndexType) ([]model.RegionStatistic, error)
	RegionSeries(ctx context.Context, regionName string, idx model.IndexType, limit int) ([]model.RegionStatistic, error)

	// Runs. BeginRun inserts the run row only if no other run is in the
	// "running" state, returning resilience.ErrAlreadyRunning otherwise.
	// Running rows older than staleAfter are marked failed first so a
	// crashed process cannot wedge the pipeline.
	BeginRun(ctx context.Context, run *model.PipelineRun, staleAfter time.Duration) error
	FinishRun(ctx context.Context, run *model.PipelineRun) error
	LatestRun(ctx context.Context) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)
	RunCounters(ctx context.Context) (total, succeeded, failed int, err error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
