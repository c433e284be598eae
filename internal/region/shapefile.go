package region

import (
	"fmt"
	"strings"
	"unicode/utf8"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/terrasight/internal/geo"
	"github.com/sells-group/terrasight/internal/model"
)

// LoadShapefile reads region polygons from an ESRI shapefile. nameField is
// the DBF attribute holding the region name (e.g. "NAME"). Records without
// a name or a usable polygon are skipped with a warning.
func LoadShapefile(path, nameField string) ([]model.Region, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, nameField)
	if nameIdx < 0 {
		return nil, eris.Errorf("region: shapefile field %q not found", nameField)
	}

	log := zap.L().With(zap.String("component", "region.shapefile"))

	var regions []model.Region
	for reader.Next() {
		_, shape := reader.Shape()
		if shape == nil {
			continue
		}

		name := strings.TrimSpace(decodeAttribute(reader.Attribute(nameIdx)))
		if name == "" {
			continue
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			log.Warn("skipping non-polygon shape", zap.String("name", name))
			continue
		}

		boundary := polygonToWKT(poly)
		if boundary == "" {
			log.Warn("skipping degenerate polygon", zap.String("name", name))
			continue
		}
		if _, err := geo.ParsePolygon(boundary); err != nil {
			log.Warn("skipping unparseable polygon", zap.String("name", name), zap.Error(err))
			continue
		}

		regions = append(regions, model.Region{Name: name, Boundary: boundary})
	}

	if len(regions) == 0 {
		return nil, eris.Errorf("region: %s yielded no usable regions", path)
	}
	return regions, nil
}

// decodeAttribute fixes DBF attributes that are Latin-1 rather than UTF-8,
// which is common for region names with diacritics.
func decodeAttribute(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return decoded
}

func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(string(f.Name[:]), "\x00"), name) {
			return i
		}
	}
	return -1
}

// polygonToWKT converts the shapefile polygon's outer parts to a WKT
// POLYGON. Only the first part (the exterior ring) is kept; aggregation
// regions are simple administrative boundaries.
func polygonToWKT(p *shp.Polygon) string {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return ""
	}

	start := p.Parts[0]
	end := int32(len(p.Points))
	if p.NumParts > 1 {
		end = p.Parts[1]
	}
	if end-start < 4 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("POLYGON((")
	for j := start; j < end; j++ {
		if j > start {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "%f %f", p.Points[j].X, p.Points[j].Y)
	}
	// Close the ring if the source did not.
	if p.Points[start] != p.Points[end-1] {
		fmt.Fprintf(&sb, ",%f %f", p.Points[start].X, p.Points[start].Y)
	}
	sb.WriteString("))")
	return sb.String()
}
