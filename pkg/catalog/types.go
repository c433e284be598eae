// Package catalog provides OAuth2-authenticated access to the imagery
// provider's scene catalog and band raster downloads.
package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrBandsUnavailable signals the provider has no raster data for the
// requested bands. Callers fall back to approximate estimation.
var ErrBandsUnavailable = errors.New("band rasters unavailable for scene")

// SceneDescriptor is one catalog entry as reported by the provider.
type SceneDescriptor struct {
	ProductID  string         `json:"product_id"`
	Title      string         `json:"title"`
	AcquiredAt time.Time      `json:"acquired_at"`
	CloudCover float64        `json:"cloud_cover"` // percent, 0-100
	Footprint  string         `json:"footprint"`   // WKT polygon, WGS84
	CenterLon  float64        `json:"center_lon"`
	CenterLat  float64        `json:"center_lat"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchRequest filters the provider catalog.
type SearchRequest struct {
	AOI           string    `json:"aoi"` // WKT polygon, WGS84
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	MaxCloudCover float64   `json:"max_cloud_cover"`
	// MaxItems bounds the total scenes returned across all pages.
	// Zero means no bound.
	MaxItems int `json:"-"`
}

// Grid is one downloaded band raster. Samples are row-major reflectance
// values; Mask marks valid pixels (nil means all valid).
type Grid struct {
	Band    string    `json:"band"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Samples []float64 `json:"samples"`
	Mask    []bool    `json:"mask,omitempty"`
}

// Client defines the provider operations the pipeline uses. Search pages
// through the catalog; FetchBands downloads two co-registered band rasters
// for one scene.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]SceneDescriptor, error)
	FetchBands(ctx context.Context, productID, bandA, bandB string) (*Grid, *Grid, error)
}
