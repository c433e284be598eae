package model

import "time"

// DateLayout is the calendar-day format used for aggregation keys.
const DateLayout = "2006-01-02"

// Scene is one ingested provider product. ProductID is globally unique;
// re-ingesting the same ProductID refreshes metadata and never duplicates.
type Scene struct {
	ID         string         `json:"id"`
	ProductID  string         `json:"product_id"`
	Title      string         `json:"title"`
	AcquiredAt time.Time      `json:"acquired_at"`
	CloudCover float64        `json:"cloud_cover"` // percent, 0-100
	Footprint  string         `json:"footprint"`   // WKT polygon, WGS84
	CenterLon  float64        `json:"center_lon"`
	CenterLat  float64        `json:"center_lat"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IngestedAt time.Time      `json:"ingested_at"`
}

// Date returns the acquisition calendar day in UTC.
func (s *Scene) Date() string {
	return s.AcquiredAt.UTC().Format(DateLayout)
}

// CalcMethod records how an IndexResult was produced.
type CalcMethod string

const (
	MethodExact       CalcMethod = "exact"       // computed per pixel from band rasters
	MethodApproximate CalcMethod = "approximate" // estimated from scene metadata
)

// IndexResult holds the summary statistics of one index over one scene.
// At most one result exists per (scene, index type) pair.
type IndexResult struct {
	ID         string     `json:"id"`
	SceneID    string     `json:"scene_id"`
	Index      IndexType  `json:"index_type"`
	Mean       float64    `json:"mean"`
	Min        float64    `json:"min"`
	Max        float64    `json:"max"`
	StdDev     float64    `json:"std_dev"`
	Median     float64    `json:"median"`
	Category   string     `json:"category"`
	Quality    float64    `json:"quality"` // 0-1
	Method     CalcMethod `json:"method"`
	ComputedAt time.Time  `json:"computed_at"`
}

// SceneResult is the join of an IndexResult with the scene fields the
// aggregator and renderer need (footprint, center, acquisition day).
type SceneResult struct {
	ProductID  string      `json:"product_id"`
	Footprint  string      `json:"footprint"`
	CenterLon  float64     `json:"center_lon"`
	CenterLat  float64     `json:"center_lat"`
	CloudCover float64     `json:"cloud_cover"`
	Result     IndexResult `json:"result"`
}

// Region is a named aggregation polygon.
type Region struct {
	Name      string    `json:"name"`
	Boundary  string    `json:"boundary"` // WKT polygon, WGS84
	CreatedAt time.Time `json:"created_at"`
}

// RegionStatistic is the daily rollup of index results intersecting a
// region. Unique per (region, date, index type); re-aggregation overwrites.
type RegionStatistic struct {
	ID          string    `json:"id"`
	RegionName  string    `json:"region_name"`
	Date        string    `json:"date"` // DateLayout
	Index       IndexType `json:"index_type"`
	Mean        float64   `json:"mean"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	StdDev      float64   `json:"std_dev"`
	SampleCount int       `json:"sample_count"`
	ComputedAt  time.Time `json:"computed_at"`
}
