package index

import (
	"errors"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"

	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/resilience"
)

// ErrNoValidPixels is returned by Exact when every sample is masked out or
// has a zero denominator. Callers usually fall back to Approximate.
var ErrNoValidPixels = errors.New("index: no valid pixels")

// Calculator produces IndexResults from band rasters or, when rasters are
// unavailable, from scene metadata alone.
type Calculator struct{}

// NewCalculator returns a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Exact computes (A−B)/(A+B) per pixel over the two band rasters and
// summarizes the valid values. The value slice is collected in raster order,
// so results are deterministic for identical inputs.
func (c *Calculator) Exact(idx model.IndexType, bandA, bandB *Raster, cloudCover float64) (*model.IndexResult, error) {
	if !idx.Valid() {
		return nil, eris.Wrapf(resilience.ErrUnsupportedIndex, "index: %q", string(idx))
	}
	if !sameShape(bandA, bandB) {
		nameA, nameB := idx.Bands()
		return nil, &resilience.BandMismatchError{
			BandA: nameA, WidthA: bandA.Width, HeightA: bandA.Height,
			BandB: nameB, WidthB: bandB.Width, HeightB: bandB.Height,
		}
	}

	values := make([]float64, 0, len(bandA.Samples))
	for i := range bandA.Samples {
		if !bandA.Valid(i) || !bandB.Valid(i) {
			continue
		}
		a, b := bandA.Samples[i], bandB.Samples[i]
		denom := a + b
		if denom == 0 {
			continue
		}
		values = append(values, clamp((a-b)/denom, -1, 1))
	}
	if len(values) == 0 {
		return nil, ErrNoValidPixels
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return nil, eris.Wrap(err, "index: mean")
	}
	min, err := stats.Min(values)
	if err != nil {
		return nil, eris.Wrap(err, "index: min")
	}
	max, err := stats.Max(values)
	if err != nil {
		return nil, eris.Wrap(err, "index: max")
	}
	stdDev, err := stats.StandardDeviation(values)
	if err != nil {
		return nil, eris.Wrap(err, "index: std dev")
	}
	median, err := stats.Median(values)
	if err != nil {
		return nil, eris.Wrap(err, "index: median")
	}

	validFraction := float64(len(values)) / float64(len(bandA.Samples))
	quality := clamp(validFraction*(1-cloudCover/100), 0, 1)

	return &model.IndexResult{
		Index:      idx,
		Mean:       mean,
		Min:        min,
		Max:        max,
		StdDev:     stdDev,
		Median:     median,
		Category:   idx.Classify(mean),
		Quality:    quality,
		Method:     model.MethodExact,
		ComputedAt: time.Now().UTC(),
	}, nil
}

// monthlyBase holds the expected index mean per calendar month (index 0 =
// January) for a cloud-free scene in a temperate mid-latitude AOI.
var monthlyBase = map[model.IndexType][12]float64{
	model.IndexVegetation: {0.25, 0.28, 0.35, 0.50, 0.62, 0.68, 0.65, 0.60, 0.50, 0.40, 0.30, 0.25},
	model.IndexWater:      {-0.25, -0.25, -0.20, -0.25, -0.30, -0.35, -0.38, -0.38, -0.32, -0.28, -0.25, -0.25},
	model.IndexBuiltup:    {-0.10, -0.10, -0.12, -0.15, -0.18, -0.20, -0.20, -0.18, -0.15, -0.12, -0.10, -0.10},
	model.IndexMoisture:   {0.10, 0.12, 0.15, 0.20, 0.25, 0.28, 0.24, 0.20, 0.18, 0.15, 0.12, 0.10},
}

const (
	approxCloudPenalty = 0.3
	approxStdDev       = 0.15
)

// Approximate estimates an IndexResult from the acquisition month and cloud
// cover alone. Quality is capped at 0.5 so an estimate can never outrank an
// exact result.
func (c *Calculator) Approximate(idx model.IndexType, acquiredAt time.Time, cloudCover float64) (*model.IndexResult, error) {
	if !idx.Valid() {
		return nil, eris.Wrapf(resilience.ErrUnsupportedIndex, "index: %q", string(idx))
	}

	base := monthlyBase[idx][acquiredAt.UTC().Month()-1]
	mean := clamp(base-approxCloudPenalty*cloudCover/100, -1, 1)

	quality := clamp((100-cloudCover)/100, 0, 1) * 0.5

	return &model.IndexResult{
		Index:      idx,
		Mean:       mean,
		Min:        clamp(mean-2*approxStdDev, -1, 1),
		Max:        clamp(mean+2*approxStdDev, -1, 1),
		StdDev:     approxStdDev,
		Median:     mean,
		Category:   idx.Classify(mean),
		Quality:    quality,
		Method:     model.MethodApproximate,
		ComputedAt: time.Now().UTC(),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
