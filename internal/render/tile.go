// Package render rasterizes index statistics into slippy-map PNG tiles.
package render

import (
	"math"
)

// TileBounds converts slippy z/x/y tile coordinates to a WGS84 bounding box
// (minLon, minLat, maxLon, maxLat).
func TileBounds(z, x, y int) (minLon, minLat, maxLon, maxLat float64) {
	n := math.Exp2(float64(z))
	minLon = float64(x)/n*360 - 180
	maxLon = float64(x+1)/n*360 - 180
	maxLat = tileLat(float64(y), n)
	minLat = tileLat(float64(y+1), n)
	return minLon, minLat, maxLon, maxLat
}

// tileLat returns the latitude of a fractional tile row in the Web Mercator
// grid.
func tileLat(y, n float64) float64 {
	rad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/n)))
	return rad * 180 / math.Pi
}

// ValidTile reports whether x and y address a tile that exists at zoom z.
func ValidTile(z, x, y int) bool {
	if z < 0 || z > 22 {
		return false
	}
	n := 1 << uint(z)
	return x >= 0 && x < n && y >= 0 && y < n
}
