package model

import "math"

// IndexType identifies a normalized-difference index. The set is closed:
// adding a type requires extending every exhaustive switch below, which the
// compiler flags via the default panic in mustKnown.
type IndexType string

const (
	IndexVegetation IndexType = "vegetation"
	IndexWater      IndexType = "water"
	IndexBuiltup    IndexType = "builtup"
	IndexMoisture   IndexType = "moisture"
)

// AllIndexTypes returns every supported index type in a fixed order.
func AllIndexTypes() []IndexType {
	return []IndexType{IndexVegetation, IndexWater, IndexBuiltup, IndexMoisture}
}

// ParseIndexType normalizes a string tag into an IndexType.
// The second return value is false for unknown tags.
func ParseIndexType(s string) (IndexType, bool) {
	switch IndexType(s) {
	case IndexVegetation, IndexWater, IndexBuiltup, IndexMoisture:
		return IndexType(s), true
	}
	// Accept the Sentinel-2 shorthand used by the provider and older tooling.
	switch s {
	case "ndvi", "NDVI":
		return IndexVegetation, true
	case "ndwi", "NDWI":
		return IndexWater, true
	case "ndbi", "NDBI":
		return IndexBuiltup, true
	case "moisture", "MOISTURE", "ndmi", "NDMI":
		return IndexMoisture, true
	}
	return "", false
}

// Bands returns the two Sentinel-2 band identifiers (A, B) such that the
// index is (A−B)/(A+B) per pixel.
func (t IndexType) Bands() (string, string) {
	switch t {
	case IndexVegetation:
		return "B08", "B04" // NIR, Red
	case IndexWater:
		return "B03", "B08" // Green, NIR
	case IndexBuiltup:
		return "B11", "B08" // SWIR, NIR
	case IndexMoisture:
		return "B08", "B11" // NIR, SWIR
	}
	mustKnown(t)
	return "", ""
}

// Threshold is one classification bucket: values below Upper (and at or
// above the previous bucket's Upper) map to Label. The final bucket uses
// +Inf so the range maximum is included.
type Threshold struct {
	Upper float64
	Label string
}

// Thresholds returns the ordered classification buckets for the index.
// Buckets are inclusive on the lower bound and exclusive on the upper bound;
// the final bucket includes the maximum.
func (t IndexType) Thresholds() []Threshold {
	switch t {
	case IndexVegetation:
		return []Threshold{
			{0, "bare/water"},
			{0.2, "sparse"},
			{0.5, "moderate"},
			{math.Inf(1), "dense"},
		}
	case IndexWater:
		return []Threshold{
			{-0.5, "dry_soil"},
			{-0.2, "moist_soil"},
			{0, "wet_soil"},
			{0.2, "shallow_water"},
			{0.5, "deep_water"},
			{math.Inf(1), "open_water"},
		}
	case IndexBuiltup:
		return []Threshold{
			{-0.5, "water"},
			{-0.2, "vegetation"},
			{0, "bare_soil"},
			{0.2, "low_density"},
			{0.4, "dense_urban"},
			{math.Inf(1), "high_density"},
		}
	case IndexMoisture:
		return []Threshold{
			{-0.6, "severe_stress"},
			{-0.4, "high_stress"},
			{-0.2, "low_stress"},
			{0, "normal"},
			{0.2, "moist"},
			{math.Inf(1), "saturated"},
		}
	}
	mustKnown(t)
	return nil
}

// Classify maps a mean index value to its categorical label.
func (t IndexType) Classify(mean float64) string {
	buckets := t.Thresholds()
	for _, b := range buckets {
		if mean < b.Upper {
			return b.Label
		}
	}
	return buckets[len(buckets)-1].Label
}

// Valid reports whether the tag names a supported index type.
func (t IndexType) Valid() bool {
	_, ok := ParseIndexType(string(t))
	return ok
}

func mustKnown(t IndexType) {
	panic("model: unknown index type " + string(t))
}
