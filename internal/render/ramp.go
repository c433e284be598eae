package render

import (
	"github.com/sells-group/terrasight/internal/model"
)

// Stop is one anchor of a piecewise-linear color ramp.
type Stop struct {
	Value   float64
	R, G, B uint8
}

// ramps maps each index type to its color ramp. Values outside the stop
// range clamp to the nearest end.
var ramps = map[model.IndexType][]Stop{
	model.IndexVegetation: {
		{-1.0, 128, 128, 128},
		{0.0, 196, 184, 168},
		{0.2, 255, 255, 76},
		{0.5, 118, 183, 72},
		{1.0, 11, 84, 35},
	},
	model.IndexWater: {
		{-1.0, 0, 100, 0},
		{0.0, 255, 255, 255},
		{1.0, 0, 60, 255},
	},
	model.IndexBuiltup: {
		{-1.0, 0, 100, 0},
		{0.0, 255, 255, 255},
		{1.0, 214, 48, 31},
	},
	model.IndexMoisture: {
		{-1.0, 128, 0, 0},
		{-0.2, 255, 165, 0},
		{0.0, 255, 255, 0},
		{0.2, 0, 255, 255},
		{1.0, 0, 0, 255},
	},
}

// RampColor maps an index value to its ramp color.
func RampColor(idx model.IndexType, v float64) (r, g, b uint8) {
	stops := ramps[idx]
	if len(stops) == 0 {
		return 0, 0, 0
	}

	if v <= stops[0].Value {
		s := stops[0]
		return s.R, s.G, s.B
	}
	last := stops[len(stops)-1]
	if v >= last.Value {
		return last.R, last.G, last.B
	}

	for i := 1; i < len(stops); i++ {
		if v > stops[i].Value {
			continue
		}
		lo, hi := stops[i-1], stops[i]
		t := (v - lo.Value) / (hi.Value - lo.Value)
		return lerp(lo.R, hi.R, t), lerp(lo.G, hi.G, t), lerp(lo.B, hi.B, t)
	}
	return last.R, last.G, last.B
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}
