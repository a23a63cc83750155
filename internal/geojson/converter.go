package geojson

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
)

// StyleProperty is the property under which encoded features carry their
// resolved style.
const StyleProperty = "_style"

// Decode parses a GeoJSON FeatureCollection into features of one category.
// Features without an id get a generated one. Later duplicates of an id are
// dropped; the string "1" and the number 1 are the same id.
func Decode(category types.Category, data []byte) ([]types.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected FeatureCollection, got %q", fc.Type)
	}
	return FromCollection(category, fc), nil
}

// FromCollection converts an already parsed collection.
func FromCollection(category types.Category, fc *geojson.FeatureCollection) []types.Feature {
	features := make([]types.Feature, 0, len(fc.Features))
	seen := make(map[types.FeatureID]bool, len(fc.Features))

	for _, gf := range fc.Features {
		if gf == nil {
			continue
		}

		id, ok := NormalizeID(gf.ID)
		if !ok {
			id = types.FeatureID(uuid.NewString())
		}
		if seen[id] {
			slog.Debug("Dropping feature with duplicate id", "category", category, "id", id)
			continue
		}
		seen[id] = true

		props := make(map[string]interface{}, len(gf.Properties))
		for k, v := range gf.Properties {
			props[k] = v
		}

		features = append(features, types.Feature{
			ID:         id,
			Category:   category,
			Geometry:   gf.Geometry,
			Properties: props,
		})
	}

	return features
}

// NormalizeID converts a GeoJSON id member into a FeatureID. Integral
// numbers are rendered without a fractional part.
func NormalizeID(v interface{}) (types.FeatureID, bool) {
	switch id := v.(type) {
	case nil:
		return types.NoFeature, false
	case string:
		if id == "" {
			return types.NoFeature, false
		}
		return types.FeatureID(id), true
	case float64:
		return types.FeatureID(strconv.FormatFloat(id, 'f', -1, 64)), true
	case json.Number:
		return types.FeatureID(id.String()), true
	case int:
		return types.FeatureID(strconv.Itoa(id)), true
	case int64:
		return types.FeatureID(strconv.FormatInt(id, 10)), true
	default:
		return types.FeatureID(fmt.Sprint(id)), true
	}
}

// StyleFunc resolves the style to embed for a feature; nil skips styling.
type StyleFunc func(f types.Feature) interface{}

// ToGeoJSON converts features to a GeoJSON FeatureCollection.
func ToGeoJSON(features []types.Feature, styleFn StyleFunc) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, f := range features {
		if f.Geometry == nil {
			continue
		}

		geoFeature := geojson.NewFeature(f.Geometry)
		geoFeature.ID = string(f.ID)
		for key, value := range f.Properties {
			geoFeature.Properties[key] = value
		}
		if styleFn != nil {
			geoFeature.Properties[StyleProperty] = styleFn(f)
		}

		fc.Append(geoFeature)
	}

	return fc
}

// ToGeoJSONBytes converts features to GeoJSON bytes
func ToGeoJSONBytes(features []types.Feature, styleFn StyleFunc) ([]byte, error) {
	data, err := json.Marshal(ToGeoJSON(features, styleFn))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}
