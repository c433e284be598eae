package region

import (
	"context"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/terrasight/internal/geo"
	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/store"
)

// Aggregator rolls scene-level index results up into daily region statistics.
type Aggregator struct {
	store store.Store
}

// NewAggregator returns an Aggregator backed by the given store.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// Aggregate computes and upserts the daily statistic for one (region, date,
// index). Only results whose scene footprint intersects the region boundary
// contribute. With no intersecting results it writes nothing and returns
// (nil, nil).
func (a *Aggregator) Aggregate(ctx context.Context, region model.Region, date string, idx model.IndexType) (*model.RegionStatistic, error) {
	boundary, err := geo.ParsePolygon(region.Boundary)
	if err != nil {
		return nil, eris.Wrapf(err, "region: boundary of %q", region.Name)
	}

	results, err := a.store.SceneResultsForDate(ctx, date, idx)
	if err != nil {
		return nil, err
	}

	var means []float64
	for _, sr := range results {
		footprint, err := geo.ParsePolygon(sr.Footprint)
		if err != nil {
			zap.S().Warnw("skipping scene with unparseable footprint",
				"product_id", sr.ProductID, "error", err.Error())
			continue
		}
		if !boundary.Intersects(footprint) {
			continue
		}
		means = append(means, sr.Result.Mean)
	}
	if len(means) == 0 {
		return nil, nil
	}

	// All four summary fields are statistics of the scene means, not of the
	// underlying pixel populations.
	mean, err := stats.Mean(means)
	if err != nil {
		return nil, eris.Wrap(err, "region: mean of means")
	}
	min, err := stats.Min(means)
	if err != nil {
		return nil, eris.Wrap(err, "region: min")
	}
	max, err := stats.Max(means)
	if err != nil {
		return nil, eris.Wrap(err, "region: max")
	}
	// Spread of the scene means, not of the underlying pixels. With a
	// single contributing scene the std dev is zero.
	stdDev := 0.0
	if len(means) > 1 {
		stdDev, err = stats.StandardDeviation(means)
		if err != nil {
			return nil, eris.Wrap(err, "region: std dev")
		}
	}

	st := &model.RegionStatistic{
		RegionName:  region.Name,
		Date:        date,
		Index:       idx,
		Mean:        mean,
		Min:         min,
		Max:         max,
		StdDev:      stdDev,
		SampleCount: len(means),
	}
	if err := a.store.UpsertRegionStatistic(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// AggregateAll runs Aggregate for every stored region and every index type
// over the given dates. It returns the number of statistics written; scene
// and parse errors are already handled inside Aggregate, storage errors
// abort.
func (a *Aggregator) AggregateAll(ctx context.Context, dates []string, indexes []model.IndexType) (int, error) {
	regions, err := a.store.ListRegions(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, date := range dates {
		for _, idx := range indexes {
			for _, region := range regions {
				if err := ctx.Err(); err != nil {
					return written, eris.Wrap(err, "region: aggregate canceled")
				}
				st, err := a.Aggregate(ctx, region, date, idx)
				if err != nil {
					return written, err
				}
				if st != nil {
					written++
				}
			}
		}
	}
	return written, nil
}
