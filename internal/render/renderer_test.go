package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/terrasight/internal/model"
)

type fakeSource struct {
	stats   []model.RegionStatistic
	regions map[string]*model.Region
	results []model.SceneResult
}

func (f *fakeSource) RegionStatisticsForDate(_ context.Context, _ string, _ model.IndexType) ([]model.RegionStatistic, error) {
	return f.stats, nil
}

func (f *fakeSource) GetRegion(_ context.Context, name string) (*model.Region, error) {
	return f.regions[name], nil
}

func (f *fakeSource) SceneResultsForDate(_ context.Context, _ string, _ model.IndexType) ([]model.SceneResult, error) {
	return f.results, nil
}

// Tile 9/280/177 covers roughly lon 16.9-17.6, lat 48.0-48.5, which overlaps
// the Trnava test boundary.
const (
	testZ = 9
	testX = 280
	testY = 177
)

const testBoundary = "POLYGON((17.4 48.2, 17.8 48.2, 17.8 48.5, 17.4 48.5, 17.4 48.2))"

func decodeTile(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestTileBounds(t *testing.T) {
	// Zoom 0: the single tile spans the whole Web Mercator world.
	minLon, minLat, maxLon, maxLat := TileBounds(0, 0, 0)
	assert.InDelta(t, -180, minLon, 1e-9)
	assert.InDelta(t, 180, maxLon, 1e-9)
	assert.InDelta(t, -85.0511, minLat, 0.001)
	assert.InDelta(t, 85.0511, maxLat, 0.001)

	// Zoom 1 top-left quadrant: western hemisphere, northern half.
	minLon, minLat, maxLon, maxLat = TileBounds(1, 0, 0)
	assert.InDelta(t, -180, minLon, 1e-9)
	assert.InDelta(t, 0, maxLon, 1e-9)
	assert.InDelta(t, 0, minLat, 1e-9)
	assert.Greater(t, maxLat, 80.0)

	// Adjacent tiles share an edge.
	_, _, maxLon, _ = TileBounds(9, 280, 178)
	minLon, _, _, _ = TileBounds(9, 281, 178)
	assert.InDelta(t, maxLon, minLon, 1e-9)
}

func TestValidTile(t *testing.T) {
	assert.True(t, ValidTile(0, 0, 0))
	assert.True(t, ValidTile(9, 511, 511))
	assert.False(t, ValidTile(9, 512, 0))
	assert.False(t, ValidTile(9, 0, -1))
	assert.False(t, ValidTile(-1, 0, 0))
	assert.False(t, ValidTile(23, 0, 0))
}

func TestRampColor(t *testing.T) {
	// Exact stop values return the stop color.
	r, g, b := RampColor(model.IndexVegetation, 1.0)
	assert.Equal(t, [3]uint8{11, 84, 35}, [3]uint8{r, g, b})

	// Values between stops interpolate.
	r, g, b = RampColor(model.IndexWater, 0.5)
	assert.Equal(t, [3]uint8{128, 158, 255}, [3]uint8{r, g, b})

	// Out-of-domain values clamp to the nearest end.
	rLo, gLo, bLo := RampColor(model.IndexVegetation, -5)
	rMin, gMin, bMin := RampColor(model.IndexVegetation, -1)
	assert.Equal(t, [3]uint8{rMin, gMin, bMin}, [3]uint8{rLo, gLo, bLo})

	rHi, _, _ := RampColor(model.IndexMoisture, 9)
	assert.Equal(t, uint8(0), rHi)
}

func TestRenderTile_Transparent(t *testing.T) {
	src := &fakeSource{regions: map[string]*model.Region{}}
	r := NewRenderer(src, nil, Options{Size: 64})

	data, cached, err := r.RenderTile(context.Background(), model.IndexVegetation, "2026-06-15", testZ, testX, testY)
	require.NoError(t, err)
	assert.False(t, cached)

	img := decodeTile(t, data)
	assert.Equal(t, 64, img.Bounds().Dx())
	for _, p := range []image.Point{{0, 0}, {32, 32}, {63, 63}} {
		_, _, _, a := img.At(p.X, p.Y).RGBA()
		assert.Zero(t, a)
	}
}

func TestRenderTile_RegionStatistic(t *testing.T) {
	src := &fakeSource{
		stats: []model.RegionStatistic{
			{RegionName: "Trnava", Date: "2026-06-15", Index: model.IndexVegetation, Mean: 0.5},
		},
		regions: map[string]*model.Region{
			"Trnava": {Name: "Trnava", Boundary: testBoundary},
		},
	}
	r := NewRenderer(src, nil, Options{Size: 64, Opacity: 0.85})

	data, _, err := r.RenderTile(context.Background(), model.IndexVegetation, "2026-06-15", testZ, testX, testY)
	require.NoError(t, err)

	img := decodeTile(t, data)
	var painted, transparent int
	for py := 0; py < 64; py++ {
		for px := 0; px < 64; px++ {
			_, _, _, a := img.At(px, py).RGBA()
			if a == 0 {
				transparent++
			} else {
				painted++
			}
		}
	}
	// The boundary covers only part of the tile, so both kinds exist.
	assert.Positive(t, painted)
	assert.Positive(t, transparent)
}

func TestRenderTile_SceneFallback(t *testing.T) {
	near := model.SceneResult{
		ProductID: "S2A_NEAR",
		Footprint: testBoundary,
		CenterLon: 17.5, CenterLat: 48.3,
		Result: model.IndexResult{Index: model.IndexVegetation, Mean: 0.6},
	}
	far := model.SceneResult{
		ProductID: "S2A_FAR",
		Footprint: "POLYGON((20 50, 21 50, 21 51, 20 51, 20 50))",
		CenterLon: 20.5, CenterLat: 50.5,
		Result: model.IndexResult{Index: model.IndexVegetation, Mean: -0.5},
	}
	src := &fakeSource{
		regions: map[string]*model.Region{},
		results: []model.SceneResult{far, near},
	}
	r := NewRenderer(src, nil, Options{Size: 64})

	data, _, err := r.RenderTile(context.Background(), model.IndexVegetation, "2026-06-15", testZ, testX, testY)
	require.NoError(t, err)

	// The near scene wins, so painted pixels carry the 0.6 vegetation color,
	// which is green-dominant.
	img := decodeTile(t, data)
	var painted bool
	for py := 0; py < 64 && !painted; py++ {
		for px := 0; px < 64; px++ {
			cr, cg, _, a := img.At(px, py).RGBA()
			if a > 0 {
				painted = true
				assert.Greater(t, cg, cr)
				break
			}
		}
	}
	assert.True(t, painted)
}

func TestRenderTile_OutOfRange(t *testing.T) {
	r := NewRenderer(&fakeSource{}, nil, Options{Size: 64, MinZoom: 6, MaxZoom: 14})

	_, _, err := r.RenderTile(context.Background(), model.IndexVegetation, "2026-06-15", 3, 0, 0)
	assert.ErrorIs(t, err, ErrTileOutOfRange)

	_, _, err = r.RenderTile(context.Background(), model.IndexVegetation, "2026-06-15", 15, 0, 0)
	assert.ErrorIs(t, err, ErrTileOutOfRange)

	_, _, err = r.RenderTile(context.Background(), model.IndexVegetation, "2026-06-15", 9, 512, 0)
	assert.ErrorIs(t, err, ErrTileOutOfRange)
}

func TestRenderTile_CacheHit(t *testing.T) {
	src := &fakeSource{regions: map[string]*model.Region{}}
	cache := NewTileCache(16, time.Hour)
	r := NewRenderer(src, cache, Options{Size: 32})

	ctx := context.Background()
	first, cached, err := r.RenderTile(ctx, model.IndexVegetation, "2026-06-15", testZ, testX, testY)
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := r.RenderTile(ctx, model.IndexVegetation, "2026-06-15", testZ, testX, testY)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first, second)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
}

func TestTileCache_InvalidateDate(t *testing.T) {
	cache := NewTileCache(16, time.Hour)
	cache.Put(model.IndexVegetation, "2026-06-15", 9, 1, 1, []byte("a"))
	cache.Put(model.IndexVegetation, "2026-06-16", 9, 1, 1, []byte("b"))
	cache.Put(model.IndexWater, "2026-06-15", 9, 1, 1, []byte("c"))

	cache.InvalidateDate(model.IndexVegetation, "2026-06-15")

	assert.Nil(t, cache.Get(model.IndexVegetation, "2026-06-15", 9, 1, 1))
	assert.NotNil(t, cache.Get(model.IndexVegetation, "2026-06-16", 9, 1, 1))
	assert.NotNil(t, cache.Get(model.IndexWater, "2026-06-15", 9, 1, 1))
}

func TestTileCache_LRUEviction(t *testing.T) {
	cache := NewTileCache(2, time.Hour)
	cache.Put(model.IndexVegetation, "2026-06-15", 9, 1, 1, []byte("a"))
	cache.Put(model.IndexVegetation, "2026-06-15", 9, 2, 2, []byte("b"))

	// Touch the first entry so the second is the LRU victim.
	require.NotNil(t, cache.Get(model.IndexVegetation, "2026-06-15", 9, 1, 1))

	cache.Put(model.IndexVegetation, "2026-06-15", 9, 3, 3, []byte("c"))

	assert.NotNil(t, cache.Get(model.IndexVegetation, "2026-06-15", 9, 1, 1))
	assert.Nil(t, cache.Get(model.IndexVegetation, "2026-06-15", 9, 2, 2))
	assert.NotNil(t, cache.Get(model.IndexVegetation, "2026-06-15", 9, 3, 3))
}

func TestTileCache_TTLExpiry(t *testing.T) {
	cache := NewTileCache(16, time.Millisecond)
	cache.Put(model.IndexVegetation, "2026-06-15", 9, 1, 1, []byte("a"))
	time.Sleep(5 * time.Millisecond)
	assert.Nil(t, cache.Get(model.IndexVegetation, "2026-06-15", 9, 1, 1))
}
