package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sells-group/terrasight/pkg/catalog"
)

// mockCatalog is an in-memory provider with scriptable failures.
type mockCatalog struct {
	scenes      []catalog.SceneDescriptor
	searchErr   error
	bands       map[string]map[string]*catalog.Grid // productID -> band -> grid
	bandsErr    error
	searchCalls atomic.Int64
	bandCalls   atomic.Int64
}

func (m *mockCatalog) Search(_ context.Context, req catalog.SearchRequest) ([]catalog.SceneDescriptor, error) {
	m.searchCalls.Add(1)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []catalog.SceneDescriptor
	for _, s := range m.scenes {
		if !s.AcquiredAt.Before(req.From) && !s.AcquiredAt.After(req.To) &&
			s.CloudCover <= req.MaxCloudCover {
			out = append(out, s)
		}
		if req.MaxItems > 0 && len(out) >= req.MaxItems {
			break
		}
	}
	return out, nil
}

func (m *mockCatalog) FetchBands(_ context.Context, productID, bandA, bandB string) (*catalog.Grid, *catalog.Grid, error) {
	m.bandCalls.Add(1)
	if m.bandsErr != nil {
		return nil, nil, m.bandsErr
	}
	grids, ok := m.bands[productID]
	if !ok {
		return nil, nil, catalog.ErrBandsUnavailable
	}
	a, okA := grids[bandA]
	b, okB := grids[bandB]
	if !okA || !okB {
		return nil, nil, catalog.ErrBandsUnavailable
	}
	return a, b, nil
}

// uniformGrid builds a width x height raster filled with one value.
func uniformGrid(band string, width, height int, value float64) *catalog.Grid {
	samples := make([]float64, width*height)
	for i := range samples {
		samples[i] = value
	}
	return &catalog.Grid{Band: band, Width: width, Height: height, Samples: samples}
}

// allBands returns a full Sentinel-2 band set for one scene so every index
// type can be computed exactly.
func allBands(nir, red, green, swir float64) map[string]*catalog.Grid {
	return map[string]*catalog.Grid{
		"B03": uniformGrid("B03", 4, 4, green),
		"B04": uniformGrid("B04", 4, 4, red),
		"B08": uniformGrid("B08", 4, 4, nir),
		"B11": uniformGrid("B11", 4, 4, swir),
	}
}

func descriptor(productID string, acquired time.Time, cloud float64) catalog.SceneDescriptor {
	return catalog.SceneDescriptor{
		ProductID:  productID,
		Title:      "S2 L2A " + productID,
		AcquiredAt: acquired,
		CloudCover: cloud,
		Footprint:  "POLYGON((17.4 48.2, 17.8 48.2, 17.8 48.5, 17.4 48.5, 17.4 48.2))",
		CenterLon:  17.6,
		CenterLat:  48.35,
	}
}
