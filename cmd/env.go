package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/pipeline"
	"github.com/sells-group/terrasight/internal/region"
	"github.com/sells-group/terrasight/internal/render"
	"github.com/sells-group/terrasight/internal/store"
	"github.com/sells-group/terrasight/pkg/catalog"
)

// pipelineEnv holds the initialized store, provider client, tile cache, and
// pipeline shared by the run/serve/backfill commands.
type pipelineEnv struct {
	Store    store.Store
	Catalog  catalog.Client
	Tiles    *render.TileCache
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "terrasight.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCatalog() catalog.Client {
	return catalog.NewClient(catalog.Config{
		BaseURL:        cfg.Provider.BaseURL,
		TokenURL:       cfg.Provider.TokenURL,
		ClientID:       cfg.Provider.ClientID,
		ClientSecret:   cfg.Provider.ClientSecret,
		RequestsPerSec: cfg.Provider.RequestsPerSec,
		Burst:          cfg.Provider.Burst,
		Timeout:        time.Duration(cfg.Provider.TimeoutSecs) * time.Second,
		MaxRetries:     cfg.Provider.MaxRetries,
		PageSize:       cfg.Provider.PageSize,
	})
}

// initPipeline sets up the store, provider client, and tile cache, and
// builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	cat := initCatalog()
	tiles := render.NewTileCache(cfg.Tiles.CacheEntries, cfg.Tiles.CacheTTL())

	env := &pipelineEnv{
		Store:    st,
		Catalog:  cat,
		Tiles:    tiles,
		Pipeline: pipeline.New(cfg, st, cat, tiles),
	}
	if err := ensureRegions(ctx, st); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// ensureRegions syncs the configured regions file into the store, or falls
// back to the default region over the configured AOI so aggregation always
// has at least one boundary.
func ensureRegions(ctx context.Context, st store.Store) error {
	if _, err := os.Stat(cfg.Regions.File); err == nil {
		regions, err := region.LoadYAML(cfg.Regions.File)
		if err != nil {
			return err
		}
		return region.Sync(ctx, st, regions)
	}

	existing, err := st.GetRegion(ctx, cfg.Regions.DefaultRegion)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	zap.L().Info("regions file not found, seeding default region",
		zap.String("region", cfg.Regions.DefaultRegion))
	return st.UpsertRegion(ctx, &model.Region{
		Name:     cfg.Regions.DefaultRegion,
		Boundary: cfg.Pipeline.AOI,
	})
}
