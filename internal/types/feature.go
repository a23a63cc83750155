package types

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Category is one of the three independent feature namespaces, each backed
// by its own source and layer.
type Category string

const (
	CategoryPoint   Category = "point"   // semaphores
	CategoryLine    Category = "line"    // lines
	CategoryPolygon Category = "polygon" // road crossings
)

// Categories lists the categories in lookup order.
var Categories = []Category{CategoryPoint, CategoryLine, CategoryPolygon}

// ParseCategory accepts the canonical names plus the dataset names used by
// the default endpoints (semaphores, line, road_cros).
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "point", "points", "semaphore", "semaphores":
		return CategoryPoint, nil
	case "line", "lines":
		return CategoryLine, nil
	case "polygon", "polygons", "road_cros", "crossing", "crossings":
		return CategoryPolygon, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// FeatureID is the stable identifier of a feature within its category.
// Numeric GeoJSON ids are carried in their decimal form. The empty id means
// "no feature".
type FeatureID string

// NoFeature is the empty identifier.
const NoFeature FeatureID = ""

// IsZero reports whether id is the empty identifier.
func (id FeatureID) IsZero() bool { return id == NoFeature }

// FeatureKey identifies a feature across all categories.
type FeatureKey struct {
	Category Category  `json:"category"`
	ID       FeatureID `json:"id"`
}

func (k FeatureKey) String() string {
	return fmt.Sprintf("%s/%s", k.Category, k.ID)
}

// Feature is a single loaded geospatial entity. Properties are never
// modified after loading.
type Feature struct {
	ID         FeatureID
	Category   Category
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// Key returns the cross-category key of the feature.
func (f Feature) Key() FeatureKey {
	return FeatureKey{Category: f.Category, ID: f.ID}
}

// Name returns the "name" property if it is a string.
func (f Feature) Name() string {
	name, _ := f.Properties["name"].(string)
	return name
}

// Attributes returns a shallow copy of the feature properties.
func (f Feature) Attributes() map[string]interface{} {
	out := make(map[string]interface{}, len(f.Properties))
	for k, v := range f.Properties {
		out[k] = v
	}
	return out
}
