package geojson

import (
	"encoding/json"
	"testing"

	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const semaphores = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "A", "geometry": {"type": "Point", "coordinates": [9.73, 52.37]}, "properties": {"name": "Intersection 1"}},
    {"type": "Feature", "id": 42, "geometry": {"type": "Point", "coordinates": [9.74, 52.38]}, "properties": {"name": "Intersection 2"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [9.75, 52.39]}, "properties": {}},
    {"type": "Feature", "id": "A", "geometry": {"type": "Point", "coordinates": [0, 0]}, "properties": {"name": "duplicate"}}
  ]
}`

func TestDecode(t *testing.T) {
	features, err := Decode(types.CategoryPoint, []byte(semaphores))
	require.NoError(t, err)
	require.Len(t, features, 3, "duplicate id should be dropped")

	assert.Equal(t, types.FeatureID("A"), features[0].ID)
	assert.Equal(t, "Intersection 1", features[0].Name())
	assert.Equal(t, types.CategoryPoint, features[0].Category)
	assert.Equal(t, orb.Point{9.73, 52.37}, features[0].Geometry)

	assert.Equal(t, types.FeatureID("42"), features[1].ID)

	assert.False(t, features[2].ID.IsZero(), "missing id should be generated")
	assert.NotEqual(t, features[2].ID, features[1].ID)
}

func TestDecodeStringAndNumberIDsCollide(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":1,"geometry":{"type":"Point","coordinates":[1,1]},"properties":{"name":"number"}},
		{"type":"Feature","id":"1","geometry":{"type":"Point","coordinates":[2,2]},"properties":{"name":"string"}}]}`

	features, err := Decode(types.CategoryPoint, []byte(doc))
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, types.FeatureID("1"), features[0].ID)
	assert.Equal(t, "number", features[0].Name(), "the first feature with an id wins")
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "<html>oops</html>"},
		{"truncated", `{"type":"FeatureCollection","features":[`},
		{"single feature", `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(types.CategoryLine, []byte(tt.input))
			require.Error(t, err)
		})
	}
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   interface{}
		want types.FeatureID
		ok   bool
	}{
		{nil, "", false},
		{"", "", false},
		{"way/1", "way/1", true},
		{float64(7), "7", true},
		{float64(123456789), "123456789", true},
		{1.5, "1.5", true},
		{json.Number("12"), "12", true},
		{int64(99), "99", true},
	}

	for _, tt := range tests {
		got, ok := NormalizeID(tt.in)
		assert.Equal(t, tt.ok, ok, "NormalizeID(%v)", tt.in)
		assert.Equal(t, tt.want, got, "NormalizeID(%v)", tt.in)
	}
}

func TestToGeoJSON(t *testing.T) {
	features := []types.Feature{
		{
			ID:         "way/12345",
			Category:   types.CategoryPolygon,
			Geometry:   orb.Polygon{{{9.73, 52.37}, {9.74, 52.37}, {9.74, 52.38}, {9.73, 52.38}, {9.73, 52.37}}},
			Properties: map[string]interface{}{"crossing": "zebra"},
		},
		{
			ID:         "way/67890",
			Category:   types.CategoryLine,
			Geometry:   orb.LineString{{9.73, 52.37}, {9.74, 52.37}, {9.75, 52.38}},
			Properties: map[string]interface{}{"highway": "primary"},
		},
		{ID: "no-geometry", Category: types.CategoryLine},
	}

	fc := ToGeoJSON(features, func(f types.Feature) interface{} { return string(f.Category) })
	require.Len(t, fc.Features, 2, "nil geometry is skipped")

	assert.Equal(t, "Polygon", fc.Features[0].Geometry.GeoJSONType())
	assert.Equal(t, "way/12345", fc.Features[0].ID)
	assert.Equal(t, "zebra", fc.Features[0].Properties["crossing"])
	assert.Equal(t, "polygon", fc.Features[0].Properties[StyleProperty])

	assert.Equal(t, "LineString", fc.Features[1].Geometry.GeoJSONType())
	_, styled := features[1].Properties[StyleProperty]
	assert.False(t, styled, "source properties must not be modified")
}

func TestToGeoJSONBytesRoundTrip(t *testing.T) {
	in := []types.Feature{{
		ID:         "B",
		Category:   types.CategoryPoint,
		Geometry:   orb.Point{9.73, 52.37},
		Properties: map[string]interface{}{"name": "Intersection 2"},
	}}

	data, err := ToGeoJSONBytes(in, nil)
	require.NoError(t, err)

	out, err := Decode(types.CategoryPoint, data)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.FeatureID("B"), out[0].ID)
	assert.Equal(t, "Intersection 2", out[0].Name())
}
