// Package geo provides the WGS84 polygon operations the aggregator and tile
// renderer need: WKT parsing, containment, and footprint intersection.
package geo

import (
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"github.com/twpayne/go-geom/xy"
)

// Polygon wraps a parsed WKT polygon with its precomputed bounds.
type Polygon struct {
	g      *geom.Polygon
	bounds *geom.Bounds
}

// ParsePolygon parses a WKT POLYGON (or the first polygon of a MULTIPOLYGON)
// in lon/lat order.
func ParsePolygon(s string) (*Polygon, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "geo: parse wkt")
	}

	var poly *geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		poly = t
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return nil, eris.New("geo: empty multipolygon")
		}
		poly = t.Polygon(0)
	default:
		return nil, eris.Errorf("geo: unsupported geometry type %T", g)
	}

	if poly.NumLinearRings() == 0 || poly.LinearRing(0).NumCoords() < 4 {
		return nil, eris.New("geo: polygon has no valid exterior ring")
	}

	return &Polygon{g: poly, bounds: poly.Bounds()}, nil
}

// WKT returns the polygon re-encoded as WKT.
func (p *Polygon) WKT() (string, error) {
	s, err := wkt.Marshal(p.g)
	if err != nil {
		return "", eris.Wrap(err, "geo: marshal wkt")
	}
	return s, nil
}

// Bounds returns (minLon, minLat, maxLon, maxLat).
func (p *Polygon) Bounds() (minLon, minLat, maxLon, maxLat float64) {
	return p.bounds.Min(0), p.bounds.Min(1), p.bounds.Max(0), p.bounds.Max(1)
}

// Centroid returns the area centroid in lon/lat.
func (p *Polygon) Centroid() (lon, lat float64) {
	c, err := xy.Centroid(p.g)
	if err != nil || len(c) < 2 {
		// Degenerate ring; fall back to the bounds center.
		return (p.bounds.Min(0) + p.bounds.Max(0)) / 2, (p.bounds.Min(1) + p.bounds.Max(1)) / 2
	}
	return c[0], c[1]
}

// Contains reports whether the point lies inside the polygon, honoring holes.
func (p *Polygon) Contains(lon, lat float64) bool {
	if lon < p.bounds.Min(0) || lon > p.bounds.Max(0) ||
		lat < p.bounds.Min(1) || lat > p.bounds.Max(1) {
		return false
	}

	pt := geom.Coord{lon, lat}
	if !xy.IsPointInRing(p.g.Layout(), pt, p.g.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.g.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.g.Layout(), pt, p.g.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// Intersects reports whether two polygons overlap. Bounds are checked first,
// then vertex containment in both directions, then exterior edge crossings.
func (p *Polygon) Intersects(other *Polygon) bool {
	if !boundsOverlap(p.bounds, other.bounds) {
		return false
	}

	if anyVertexInside(other, p.g.LinearRing(0)) || anyVertexInside(p, other.g.LinearRing(0)) {
		return true
	}

	return ringsCross(p.g.LinearRing(0), other.g.LinearRing(0))
}

func boundsOverlap(a, b *geom.Bounds) bool {
	return a.Min(0) <= b.Max(0) && b.Min(0) <= a.Max(0) &&
		a.Min(1) <= b.Max(1) && b.Min(1) <= a.Max(1)
}

func anyVertexInside(p *Polygon, ring *geom.LinearRing) bool {
	coords := ring.FlatCoords()
	stride := ring.Stride()
	for i := 0; i+1 < len(coords); i += stride {
		if p.Contains(coords[i], coords[i+1]) {
			return true
		}
	}
	return false
}

// ringsCross tests exterior rings for any crossing segment pair. Footprints
// and region boundaries are small, so the quadratic scan is fine.
func ringsCross(a, b *geom.LinearRing) bool {
	ac, as := a.FlatCoords(), a.Stride()
	bc, bs := b.FlatCoords(), b.Stride()

	for i := 0; i+as+1 < len(ac); i += as {
		for j := 0; j+bs+1 < len(bc); j += bs {
			if segmentsIntersect(
				ac[i], ac[i+1], ac[i+as], ac[i+as+1],
				bc[j], bc[j+1], bc[j+bs], bc[j+bs+1],
			) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(ax1, ay1, ax2, ay2, bx1, by1, bx2, by2 float64) bool {
	d1 := cross(bx1, by1, bx2, by2, ax1, ay1)
	d2 := cross(bx1, by1, bx2, by2, ax2, ay2)
	d3 := cross(ax1, ay1, ax2, ay2, bx1, by1)
	d4 := cross(ax1, ay1, ax2, ay2, bx2, by2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func cross(ox, oy, ax, ay, px, py float64) float64 {
	return (ax-ox)*(py-oy) - (ay-oy)*(px-ox)
}
