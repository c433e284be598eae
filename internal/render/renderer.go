package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/terrasight/internal/geo"
	"github.com/sells-group/terrasight/internal/model"
)

// StatSource is the slice of the store the renderer reads from.
type StatSource interface {
	RegionStatisticsForDate(ctx context.Context, date string, idx model.IndexType) ([]model.RegionStatistic, error)
	GetRegion(ctx context.Context, name string) (*model.Region, error)
	SceneResultsForDate(ctx context.Context, date string, idx model.IndexType) ([]model.SceneResult, error)
}

// Options configures a Renderer.
type Options struct {
	Size    int     // tile edge in pixels
	Opacity float64 // alpha of painted pixels, 0-1
	MinZoom int
	MaxZoom int
}

// Renderer rasterizes daily index statistics into PNG tiles.
type Renderer struct {
	source StatSource
	cache  *TileCache
	opts   Options
}

// NewRenderer creates a Renderer. A nil cache disables caching.
func NewRenderer(source StatSource, cache *TileCache, opts Options) *Renderer {
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.Opacity <= 0 || opts.Opacity > 1 {
		opts.Opacity = 0.85
	}
	return &Renderer{source: source, cache: cache, opts: opts}
}

// Cache exposes the tile cache for invalidation and stats.
func (r *Renderer) Cache() *TileCache {
	return r.cache
}

// ErrTileOutOfRange rejects tile coordinates outside the configured zoom
// window or the grid at that zoom.
var ErrTileOutOfRange = eris.New("render: tile out of range")

// RenderTile produces the PNG tile for (index, date, z, x, y). Pixels inside
// a region that has a statistic for the date are tinted with the ramp color
// of the region mean. If no region statistic touches the tile, the nearest
// same-date scene result paints its footprint instead. With no data at all
// the tile is fully transparent.
func (r *Renderer) RenderTile(ctx context.Context, idx model.IndexType, date string, z, x, y int) ([]byte, bool, error) {
	if !idx.Valid() {
		return nil, false, eris.Errorf("render: unsupported index %q", string(idx))
	}
	if !ValidTile(z, x, y) || z < r.opts.MinZoom || (r.opts.MaxZoom > 0 && z > r.opts.MaxZoom) {
		return nil, false, ErrTileOutOfRange
	}

	if r.cache != nil {
		if data := r.cache.Get(idx, date, z, x, y); data != nil {
			return data, true, nil
		}
	}

	layers, err := r.resolveLayers(ctx, idx, date, z, x, y)
	if err != nil {
		return nil, false, err
	}

	data, err := r.rasterize(idx, layers, z, x, y)
	if err != nil {
		return nil, false, err
	}

	if r.cache != nil {
		r.cache.Put(idx, date, z, x, y, data)
	}
	return data, false, nil
}

// paintLayer is one polygon to tint with one value.
type paintLayer struct {
	boundary *geo.Polygon
	value    float64
}

func (r *Renderer) resolveLayers(ctx context.Context, idx model.IndexType, date string, z, x, y int) ([]paintLayer, error) {
	minLon, minLat, maxLon, maxLat := TileBounds(z, x, y)
	tilePoly, err := geo.ParsePolygon(bboxWKT(minLon, minLat, maxLon, maxLat))
	if err != nil {
		return nil, eris.Wrap(err, "render: tile bbox")
	}

	stats, err := r.source.RegionStatisticsForDate(ctx, date, idx)
	if err != nil {
		return nil, err
	}

	var layers []paintLayer
	for _, st := range stats {
		region, err := r.source.GetRegion(ctx, st.RegionName)
		if err != nil {
			return nil, err
		}
		if region == nil {
			continue
		}
		boundary, err := geo.ParsePolygon(region.Boundary)
		if err != nil {
			zap.S().Warnw("skipping region with unparseable boundary",
				"region", st.RegionName, "error", err.Error())
			continue
		}
		if boundary.Intersects(tilePoly) {
			layers = append(layers, paintLayer{boundary: boundary, value: st.Mean})
		}
	}
	if len(layers) > 0 {
		return layers, nil
	}

	// No region coverage; fall back to the nearest scene of the day.
	results, err := r.source.SceneResultsForDate(ctx, date, idx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	centerLon := (minLon + maxLon) / 2
	centerLat := (minLat + maxLat) / 2
	best := -1
	bestDist := math.Inf(1)
	for i, sr := range results {
		d := (sr.CenterLon-centerLon)*(sr.CenterLon-centerLon) +
			(sr.CenterLat-centerLat)*(sr.CenterLat-centerLat)
		// Product ID breaks exact distance ties so tiles are reproducible.
		if d < bestDist || (d == bestDist && best >= 0 && sr.ProductID < results[best].ProductID) {
			best = i
			bestDist = d
		}
	}

	footprint, err := geo.ParsePolygon(results[best].Footprint)
	if err != nil {
		zap.S().Warnw("nearest scene has unparseable footprint",
			"product_id", results[best].ProductID, "error", err.Error())
		return nil, nil
	}
	return []paintLayer{{boundary: footprint, value: results[best].Result.Mean}}, nil
}

func (r *Renderer) rasterize(idx model.IndexType, layers []paintLayer, z, x, y int) ([]byte, error) {
	size := r.opts.Size
	img := image.NewNRGBA(image.Rect(0, 0, size, size))

	if len(layers) > 0 {
		minLon, _, maxLon, _ := TileBounds(z, x, y)
		n := math.Exp2(float64(z))
		alpha := uint8(r.opts.Opacity*255 + 0.5)

		for py := 0; py < size; py++ {
			lat := tileLat(float64(y)+(float64(py)+0.5)/float64(size), n)
			for px := 0; px < size; px++ {
				lon := minLon + (maxLon-minLon)*(float64(px)+0.5)/float64(size)
				for _, layer := range layers {
					if layer.boundary.Contains(lon, lat) {
						cr, cg, cb := RampColor(idx, layer.value)
						img.SetNRGBA(px, py, color.NRGBA{R: cr, G: cg, B: cb, A: alpha})
						break
					}
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, eris.Wrap(err, "render: encode png")
	}
	return buf.Bytes(), nil
}

func bboxWKT(minLon, minLat, maxLon, maxLat float64) string {
	return "POLYGON((" +
		coord(minLon, minLat) + ", " +
		coord(maxLon, minLat) + ", " +
		coord(maxLon, maxLat) + ", " +
		coord(minLon, maxLat) + ", " +
		coord(minLon, minLat) + "))"
}

func coord(lon, lat float64) string {
	return strconv.FormatFloat(lon, 'f', -1, 64) + " " + strconv.FormatFloat(lat, 'f', -1, 64)
}
