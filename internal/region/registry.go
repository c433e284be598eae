// Package region loads named aggregation polygons and rolls scene-level
// index results up into daily per-region statistics.
package region

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/terrasight/internal/geo"
	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/store"
)

// definitionFile is the YAML shape of a region definitions file.
type definitionFile struct {
	Regions []definition `yaml:"regions"`
}

type definition struct {
	Name     string `yaml:"name"`
	Boundary string `yaml:"boundary"`
}

// LoadYAML reads region definitions from a YAML file. Each boundary must be
// a valid WKT polygon in lon/lat order.
func LoadYAML(path string) ([]model.Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: read %s", path)
	}

	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "region: parse %s", path)
	}
	if len(file.Regions) == 0 {
		return nil, eris.Errorf("region: %s defines no regions", path)
	}

	regions := make([]model.Region, 0, len(file.Regions))
	for _, def := range file.Regions {
		if def.Name == "" {
			return nil, eris.Errorf("region: %s contains a region with no name", path)
		}
		if _, err := geo.ParsePolygon(def.Boundary); err != nil {
			return nil, eris.Wrapf(err, "region: %s boundary for %q", path, def.Name)
		}
		regions = append(regions, model.Region{Name: def.Name, Boundary: def.Boundary})
	}
	return regions, nil
}

// Sync upserts the given regions into the store.
func Sync(ctx context.Context, st store.Store, regions []model.Region) error {
	log := zap.L().With(zap.String("component", "region.registry"))
	for i := range regions {
		if err := st.UpsertRegion(ctx, &regions[i]); err != nil {
			return eris.Wrapf(err, "region: sync %q", regions[i].Name)
		}
	}
	log.Info("regions synced", zap.Int("count", len(regions)))
	return nil
}
