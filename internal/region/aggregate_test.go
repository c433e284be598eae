package region

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "region.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedScene(t *testing.T, st store.Store, productID, footprint string, day time.Time, mean float64) {
	t.Helper()
	ctx := context.Background()

	sc := &model.Scene{
		ProductID:  productID,
		Title:      productID,
		AcquiredAt: day,
		CloudCover: 10,
		Footprint:  footprint,
		CenterLon:  17.6,
		CenterLat:  48.35,
	}
	_, err := st.UpsertScene(ctx, sc)
	require.NoError(t, err)

	require.NoError(t, st.UpsertIndexResult(ctx, &model.IndexResult{
		SceneID: sc.ID, Index: model.IndexVegetation,
		Mean: mean, Min: mean - 0.2, Max: mean + 0.2, StdDev: 0.1, Median: mean,
		Category: model.IndexVegetation.Classify(mean), Quality: 0.9,
		Method: model.MethodExact,
	}))
}

const trnavaBoundary = "POLYGON((17.4 48.2, 17.8 48.2, 17.8 48.5, 17.4 48.5, 17.4 48.2))"

func TestAggregate_IntersectingScenesOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.UpsertRegion(ctx, &model.Region{Name: "Trnava", Boundary: trnavaBoundary}))

	// Two scenes overlap the region, one is far away.
	seedScene(t, st, "prod-in-1", "POLYGON((17.3 48.1, 17.9 48.1, 17.9 48.4, 17.3 48.4, 17.3 48.1))", day, 0.4)
	seedScene(t, st, "prod-in-2", "POLYGON((17.5 48.3, 18.0 48.3, 18.0 48.6, 17.5 48.6, 17.5 48.3))", day, 0.6)
	seedScene(t, st, "prod-out", "POLYGON((20.0 50.0, 20.5 50.0, 20.5 50.5, 20.0 50.5, 20.0 50.0))", day, 0.9)

	agg := NewAggregator(st)
	stat, err := agg.Aggregate(ctx, model.Region{Name: "Trnava", Boundary: trnavaBoundary}, "2026-08-12", model.IndexVegetation)
	require.NoError(t, err)
	require.NotNil(t, stat)

	assert.Equal(t, 2, stat.SampleCount)
	assert.InDelta(t, 0.5, stat.Mean, 0.001)
	// Min/max are over the scene means (0.4 and 0.6), not over the scenes'
	// own pixel extremes (0.2 and 0.8).
	assert.InDelta(t, 0.4, stat.Min, 0.001)
	assert.InDelta(t, 0.6, stat.Max, 0.001)

	// Persisted and retrievable.
	stored, err := st.RegionStatisticsForDate(ctx, "2026-08-12", model.IndexVegetation)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Trnava", stored[0].RegionName)
}

func TestAggregate_NoIntersectingScenes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.UpsertRegion(ctx, &model.Region{Name: "Trnava", Boundary: trnavaBoundary}))
	seedScene(t, st, "prod-out", "POLYGON((20.0 50.0, 20.5 50.0, 20.5 50.5, 20.0 50.5, 20.0 50.0))", day, 0.9)

	agg := NewAggregator(st)
	stat, err := agg.Aggregate(ctx, model.Region{Name: "Trnava", Boundary: trnavaBoundary}, "2026-08-12", model.IndexVegetation)
	require.NoError(t, err)
	assert.Nil(t, stat)

	stored, err := st.RegionStatisticsForDate(ctx, "2026-08-12", model.IndexVegetation)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAggregate_ReaggregationOverwrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)
	region := model.Region{Name: "Trnava", Boundary: trnavaBoundary}

	require.NoError(t, st.UpsertRegion(ctx, &region))
	seedScene(t, st, "prod-a", trnavaBoundary, day, 0.4)

	agg := NewAggregator(st)
	first, err := agg.Aggregate(ctx, region, "2026-08-12", model.IndexVegetation)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SampleCount)

	// A second scene arrives later the same day; re-aggregation replaces.
	seedScene(t, st, "prod-b", trnavaBoundary, day.Add(time.Hour), 0.6)
	second, err := agg.Aggregate(ctx, region, "2026-08-12", model.IndexVegetation)
	require.NoError(t, err)
	assert.Equal(t, 2, second.SampleCount)

	stored, err := st.RegionStatisticsForDate(ctx, "2026-08-12", model.IndexVegetation)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].SampleCount)
}

func TestAggregate_SingleSceneZeroStdDev(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)
	region := model.Region{Name: "Trnava", Boundary: trnavaBoundary}

	require.NoError(t, st.UpsertRegion(ctx, &region))
	seedScene(t, st, "prod-single", trnavaBoundary, day, 0.4)

	agg := NewAggregator(st)
	stat, err := agg.Aggregate(ctx, region, "2026-08-12", model.IndexVegetation)
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Zero(t, stat.StdDev)
}

func TestAggregateAll(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.UpsertRegion(ctx, &model.Region{Name: "Trnava", Boundary: trnavaBoundary}))
	require.NoError(t, st.UpsertRegion(ctx, &model.Region{Name: "Elsewhere", Boundary: "POLYGON((30 30, 31 30, 31 31, 30 31, 30 30))"}))
	seedScene(t, st, "prod-a", trnavaBoundary, day, 0.4)

	agg := NewAggregator(st)
	written, err := agg.AggregateAll(ctx, []string{"2026-08-12"}, []model.IndexType{model.IndexVegetation, model.IndexWater})
	require.NoError(t, err)
	// Only (Trnava, vegetation) has contributing results.
	assert.Equal(t, 1, written)
}
