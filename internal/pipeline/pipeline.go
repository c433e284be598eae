// Package pipeline orchestrates one ingestion-and-derivation run: catalog
// search, scene upsert, index calculation, region aggregation, and tile
// cache invalidation.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/terrasight/internal/config"
	"github.com/sells-group/terrasight/internal/index"
	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/region"
	"github.com/sells-group/terrasight/internal/render"
	"github.com/sells-group/terrasight/internal/resilience"
	"github.com/sells-group/terrasight/internal/store"
	"github.com/sells-group/terrasight/pkg/catalog"
)

// Pipeline wires the catalog client, calculator, aggregator, and tile cache
// around the metadata store.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	catalog catalog.Client
	calc    *index.Calculator
	agg     *region.Aggregator
	tiles   *render.TileCache
}

// New creates a Pipeline. The tile cache may be nil when no server is
// attached.
func New(cfg *config.Config, st store.Store, cat catalog.Client, tiles *render.TileCache) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		catalog: cat,
		calc:    index.NewCalculator(),
		agg:     region.NewAggregator(st),
		tiles:   tiles,
	}
}

// Execute runs the pipeline over the configured lookback window ending now.
func (p *Pipeline) Execute(ctx context.Context, trigger model.RunTrigger) (*model.PipelineRun, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -p.cfg.Pipeline.LookbackDays)
	return p.ExecuteWindow(ctx, trigger, from, to)
}

// ExecuteRun runs over the configured lookback window using a pre-assigned
// run record. The scheduler uses this so a trigger can hand out the run ID
// before the run completes.
func (p *Pipeline) ExecuteRun(ctx context.Context, run *model.PipelineRun) error {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -p.cfg.Pipeline.LookbackDays)
	_, err := p.executeWindow(ctx, run, from, to)
	return err
}

// ExecuteWindow runs the pipeline over an explicit acquisition window.
// Exactly one run executes at a time; a second trigger gets
// resilience.ErrAlreadyRunning. Scene-local failures are recorded on the run
// and do not fail it; storage failures do.
func (p *Pipeline) ExecuteWindow(ctx context.Context, trigger model.RunTrigger, from, to time.Time) (*model.PipelineRun, error) {
	return p.executeWindow(ctx, &model.PipelineRun{Trigger: trigger}, from, to)
}

func (p *Pipeline) executeWindow(ctx context.Context, run *model.PipelineRun, from, to time.Time) (*model.PipelineRun, error) {
	// A crashed process leaves its running row behind; anything older than
	// twice the run deadline is expired before we claim the guard.
	staleAfter := 2 * p.cfg.Pipeline.RunTimeout()
	if err := p.store.BeginRun(ctx, run, staleAfter); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("trigger", string(run.Trigger)),
		zap.Time("from", from),
		zap.Time("to", to),
	)
	log.Info("pipeline: run started")

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Pipeline.RunTimeout())
	defer cancel()

	err := p.execute(runCtx, run, from, to)

	run.Status = model.RunStatusSucceeded
	if err != nil {
		run.Status = model.RunStatusFailed
		run.RecordError(err.Error())
	}

	// Release the guard even when the run context is already dead.
	finishCtx, finishCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer finishCancel()
	if finishErr := p.store.FinishRun(finishCtx, run); finishErr != nil {
		log.Error("pipeline: failed to finish run", zap.Error(finishErr))
		if err == nil {
			err = finishErr
		}
	}

	log.Info("pipeline: run finished",
		zap.String("status", string(run.Status)),
		zap.Int("scenes_found", run.ScenesFound),
		zap.Int("scenes_new", run.ScenesNew),
		zap.Int("scenes_processed", run.ScenesProcessed),
		zap.Int("errors", run.ErrorCount),
	)
	return run, err
}

func (p *Pipeline) execute(ctx context.Context, run *model.PipelineRun, from, to time.Time) error {
	descriptors, searchErr := p.catalog.Search(ctx, catalog.SearchRequest{
		AOI:           p.cfg.Pipeline.AOI,
		From:          from,
		To:            to,
		MaxCloudCover: p.cfg.Pipeline.MaxCloudCover,
		MaxItems:      p.cfg.Pipeline.MaxScenes,
	})
	if searchErr != nil {
		// The provider being down is not fatal; the run continues with
		// whatever pages were fetched before the failure.
		run.RecordError(searchErr.Error())
		zap.L().Warn("pipeline: catalog search failed",
			zap.Int("partial_scenes", len(descriptors)),
			zap.Error(searchErr))
	}
	run.ScenesFound = len(descriptors)

	newScenes, err := p.ingest(ctx, descriptors)
	if err != nil {
		return err
	}
	run.ScenesNew = len(newScenes)

	indexes := p.indexes()
	if err := p.computeScenes(ctx, run, newScenes, indexes); err != nil {
		return err
	}

	dates := sceneDates(newScenes)
	if len(dates) > 0 {
		written, err := p.agg.AggregateAll(ctx, dates, indexes)
		if err != nil {
			return err
		}
		zap.L().Debug("pipeline: regions aggregated",
			zap.Int("statistics", written),
			zap.Strings("dates", dates))
		p.invalidateTiles(indexes, dates)
	}
	return nil
}

// ingest upserts every descriptor and returns the genuinely new scenes.
// Already-known scenes get a metadata refresh only, which keeps repeated
// runs idempotent.
func (p *Pipeline) ingest(ctx context.Context, descriptors []catalog.SceneDescriptor) ([]model.Scene, error) {
	var newScenes []model.Scene
	for _, d := range descriptors {
		scene := model.Scene{
			ProductID:  d.ProductID,
			Title:      d.Title,
			AcquiredAt: d.AcquiredAt,
			CloudCover: d.CloudCover,
			Footprint:  d.Footprint,
			CenterLon:  d.CenterLon,
			CenterLat:  d.CenterLat,
			Metadata:   d.Metadata,
		}
		inserted, err := p.store.UpsertScene(ctx, &scene)
		if err != nil {
			return nil, err
		}
		if inserted {
			newScenes = append(newScenes, scene)
		}
	}
	return newScenes, nil
}

// computeScenes runs index calculation for every (new scene, index) pair
// with bounded parallelism. Scene-local errors are recorded on the run;
// storage errors abort the group.
func (p *Pipeline) computeScenes(ctx context.Context, run *model.PipelineRun, scenes []model.Scene, indexes []model.IndexType) error {
	if len(scenes) == 0 {
		return nil
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Pipeline.Concurrency)

	for i := range scenes {
		scene := scenes[i]
		g.Go(func() error {
			computed, sceneErrs, err := p.computeScene(gCtx, scene, indexes)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				return err
			}
			for _, msg := range sceneErrs {
				run.RecordError(msg)
			}
			if computed > 0 {
				run.ScenesProcessed++
			}
			return nil
		})
	}
	return g.Wait()
}

// computeScene produces one IndexResult per index type for the scene.
// The returned error is fatal (storage or cancellation); provider and
// calculation problems come back as recorded messages.
func (p *Pipeline) computeScene(ctx context.Context, scene model.Scene, indexes []model.IndexType) (int, []string, error) {
	log := zap.L().With(zap.String("product_id", scene.ProductID))
	computed := 0
	var recorded []string

	for _, idx := range indexes {
		if err := ctx.Err(); err != nil {
			return computed, recorded, eris.Wrap(err, "pipeline: scene calculation canceled")
		}

		result, err := p.computeIndex(ctx, scene, idx)
		if err != nil {
			if resilience.IsStorageUnavailable(err) {
				return computed, recorded, err
			}
			recorded = append(recorded,
				"scene "+scene.ProductID+" index "+string(idx)+": "+err.Error())
			log.Warn("pipeline: index calculation failed",
				zap.String("index", string(idx)), zap.Error(err))
			continue
		}

		result.SceneID = scene.ID
		if err := p.store.UpsertIndexResult(ctx, result); err != nil {
			return computed, recorded, err
		}
		computed++
		log.Debug("pipeline: index computed",
			zap.String("index", string(idx)),
			zap.String("method", string(result.Method)),
			zap.Float64("mean", result.Mean),
		)
	}
	return computed, recorded, nil
}

// computeIndex tries the exact band-based calculation and falls back to the
// metadata estimate when the provider has no rasters or every pixel is
// masked. A band dimension mismatch stays an error: the data exists but is
// unusable, so synthesizing a value would hide a provider defect.
func (p *Pipeline) computeIndex(ctx context.Context, scene model.Scene, idx model.IndexType) (*model.IndexResult, error) {
	bandA, bandB := idx.Bands()
	gridA, gridB, err := p.catalog.FetchBands(ctx, scene.ProductID, bandA, bandB)
	if err != nil {
		if errors.Is(err, catalog.ErrBandsUnavailable) {
			return p.calc.Approximate(idx, scene.AcquiredAt, scene.CloudCover)
		}
		return nil, err
	}

	result, err := p.calc.Exact(idx, gridToRaster(gridA), gridToRaster(gridB), scene.CloudCover)
	if errors.Is(err, index.ErrNoValidPixels) {
		return p.calc.Approximate(idx, scene.AcquiredAt, scene.CloudCover)
	}
	return result, err
}

// ErrSceneNotFound rejects a recompute request for an unknown product ID.
var ErrSceneNotFound = eris.New("pipeline: scene not found")

// ErrResultExists rejects an unforced recompute when a result is already
// stored for the (scene, index) pair.
var ErrResultExists = eris.New("pipeline: index result already exists, use force to replace")

// Recompute recalculates one index for one stored scene. An existing result
// is only replaced when force is set. The affected daily statistic is
// re-aggregated and its cached tiles invalidated.
func (p *Pipeline) Recompute(ctx context.Context, productID string, idx model.IndexType, force bool) (*model.IndexResult, error) {
	if !idx.Valid() {
		return nil, eris.Wrapf(resilience.ErrUnsupportedIndex, "pipeline: %q", string(idx))
	}

	scene, err := p.store.GetSceneByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if scene == nil {
		return nil, eris.Wrapf(ErrSceneNotFound, "product %s", productID)
	}

	existing, err := p.store.GetIndexResult(ctx, scene.ID, idx)
	if err != nil {
		return nil, err
	}
	if existing != nil && !force {
		return nil, eris.Wrapf(ErrResultExists, "scene %s index %s", productID, string(idx))
	}

	result, err := p.computeIndex(ctx, *scene, idx)
	if err != nil {
		return nil, err
	}
	result.SceneID = scene.ID
	if err := p.store.UpsertIndexResult(ctx, result); err != nil {
		return nil, err
	}

	date := scene.Date()
	if _, err := p.agg.AggregateAll(ctx, []string{date}, []model.IndexType{idx}); err != nil {
		return nil, err
	}
	if p.tiles != nil {
		p.tiles.InvalidateDate(idx, date)
	}

	zap.L().Info("pipeline: scene recomputed",
		zap.String("product_id", productID),
		zap.String("index", string(idx)),
		zap.Bool("forced", force),
	)
	return result, nil
}

func (p *Pipeline) invalidateTiles(indexes []model.IndexType, dates []string) {
	if p.tiles == nil {
		return
	}
	for _, idx := range indexes {
		for _, date := range dates {
			p.tiles.InvalidateDate(idx, date)
		}
	}
}

// indexes resolves the configured index tags, dropping unknown ones with a
// warning. An empty configuration means all supported types.
func (p *Pipeline) indexes() []model.IndexType {
	if len(p.cfg.Pipeline.Indexes) == 0 {
		return model.AllIndexTypes()
	}
	var out []model.IndexType
	for _, tag := range p.cfg.Pipeline.Indexes {
		idx, ok := model.ParseIndexType(tag)
		if !ok {
			zap.S().Warnw("ignoring unknown index type in config", "index", tag)
			continue
		}
		out = append(out, idx)
	}
	if len(out) == 0 {
		return model.AllIndexTypes()
	}
	return out
}

func sceneDates(scenes []model.Scene) []string {
	seen := make(map[string]struct{}, len(scenes))
	var dates []string
	for i := range scenes {
		d := scenes[i].Date()
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

func gridToRaster(g *catalog.Grid) *index.Raster {
	return &index.Raster{
		Width:   g.Width,
		Height:  g.Height,
		Samples: g.Samples,
		Mask:    g.Mask,
	}
}
