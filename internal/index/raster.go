// Package index computes normalized-difference indexes over band rasters
// and estimates them from scene metadata when bands are unavailable.
package index

// Raster is a single-band grid of reflectance samples in row-major order.
// Mask marks valid samples; a nil Mask means every sample is valid.
type Raster struct {
	Width   int
	Height  int
	Samples []float64
	Mask    []bool
}

// NewRaster allocates a raster with all samples valid.
func NewRaster(width, height int) *Raster {
	return &Raster{
		Width:   width,
		Height:  height,
		Samples: make([]float64, width*height),
	}
}

// Len returns the number of samples.
func (r *Raster) Len() int {
	return len(r.Samples)
}

// Valid reports whether sample i carries usable data.
func (r *Raster) Valid(i int) bool {
	return r.Mask == nil || r.Mask[i]
}

// sameShape reports whether two rasters share dimensions and sample count.
func sameShape(a, b *Raster) bool {
	return a.Width == b.Width && a.Height == b.Height && len(a.Samples) == len(b.Samples)
}
