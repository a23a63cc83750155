package datasource

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/paulmach/orb"
)

var roadPattern = regexp.MustCompile(`^(` + roadClasses + `)(_link)?$`)

// UnmarshalOverpassJSON decodes an Overpass API JSON response into an overpass.Result.
// This is used by the WASM bridge (browser fetch + Go-side parsing).
func UnmarshalOverpassJSON(data []byte) (*overpass.Result, error) {
	var result overpass.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overpass json: %w", err)
	}
	return &result, nil
}

// ExtractCategory converts the elements of an Overpass result that belong
// to cat into features, ordered by element id. Ids take the form
// "node/<id>", "way/<id>" or "relation/<id>".
func ExtractCategory(result *overpass.Result, cat types.Category) []types.Feature {
	if result == nil {
		return nil
	}

	var features []types.Feature
	switch cat {
	case types.CategoryPoint:
		for _, id := range sortedIDs(result.Nodes) {
			node := result.Nodes[id]
			if !isSignal(node.Tags) {
				continue
			}
			features = append(features, newFeature(cat, fmt.Sprintf("node/%d", node.ID),
				orb.Point{node.Lon, node.Lat}, node.Tags))
		}

	case types.CategoryLine:
		for _, id := range sortedIDs(result.Ways) {
			way := result.Ways[id]
			if !isRoad(way.Tags) || isArea(way.Tags) {
				continue
			}
			ls := wayLineString(way)
			if len(ls) < 2 {
				continue
			}
			features = append(features, newFeature(cat, fmt.Sprintf("way/%d", way.ID), ls, way.Tags))
		}

	case types.CategoryPolygon:
		memberWayIDs := make(map[int64]bool)
		for _, rel := range result.Relations {
			if rel.Tags["type"] != "multipolygon" {
				continue
			}
			for _, member := range rel.Members {
				if member.Type == "way" && member.Way != nil {
					memberWayIDs[member.Way.ID] = true
				}
			}
		}

		for _, id := range sortedIDs(result.Ways) {
			way := result.Ways[id]
			if memberWayIDs[way.ID] || !isArea(way.Tags) {
				continue
			}
			ls := wayLineString(way)
			if len(ls) < 4 || ls[0] != ls[len(ls)-1] {
				continue
			}
			features = append(features, newFeature(cat, fmt.Sprintf("way/%d", way.ID),
				orb.Polygon{orb.Ring(ls)}, way.Tags))
		}

		for _, id := range sortedIDs(result.Relations) {
			rel := result.Relations[id]
			if rel.Tags["type"] != "multipolygon" || !isArea(rel.Tags) {
				continue
			}
			if geom := assembleMultipolygon(rel); geom != nil {
				features = append(features, newFeature(cat, fmt.Sprintf("relation/%d", rel.ID), geom, rel.Tags))
			}
		}
	}

	return features
}

// assembleMultipolygon builds the geometry of a multipolygon relation from
// its embedded member ways. Members the result does not embed are skipped.
func assembleMultipolygon(rel *overpass.Relation) orb.Geometry {
	var outerRings, innerRings []orb.Ring

	for _, member := range rel.Members {
		if member.Type != "way" || member.Way == nil || len(member.Way.Geometry) == 0 {
			continue
		}

		points := wayLineString(member.Way)
		if points[0] != points[len(points)-1] {
			points = append(points, points[0])
		}

		if member.Role == "inner" {
			innerRings = append(innerRings, orb.Ring(points))
		} else {
			outerRings = append(outerRings, orb.Ring(points))
		}
	}

	switch len(outerRings) {
	case 0:
		return nil
	case 1:
		rings := make(orb.Polygon, 0, 1+len(innerRings))
		rings = append(rings, outerRings[0])
		rings = append(rings, innerRings...)
		return rings
	default:
		// Inner rings are not assigned to outer rings here.
		polygons := make(orb.MultiPolygon, len(outerRings))
		for i, outer := range outerRings {
			polygons[i] = orb.Polygon{outer}
		}
		return polygons
	}
}

func wayLineString(way *overpass.Way) orb.LineString {
	points := make(orb.LineString, len(way.Geometry))
	for i, p := range way.Geometry {
		points[i] = orb.Point{p.Lon, p.Lat}
	}
	return points
}

func newFeature(cat types.Category, id string, geom orb.Geometry, tags map[string]string) types.Feature {
	props := convertTags(tags)
	props["osm_id"] = id
	return types.Feature{
		ID:         types.FeatureID(id),
		Category:   cat,
		Geometry:   geom,
		Properties: props,
	}
}

func sortedIDs[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func isSignal(tags map[string]string) bool {
	return tags["highway"] == "traffic_signals" ||
		tags["crossing"] == "traffic_signals"
}

func isRoad(tags map[string]string) bool {
	return roadPattern.MatchString(tags["highway"])
}

func isArea(tags map[string]string) bool {
	return tags["area:highway"] != "" ||
		(tags["highway"] == "crossing" && tags["area"] == "yes")
}

// convertTags converts OSM tags to generic properties map
func convertTags(tags map[string]string) map[string]interface{} {
	props := make(map[string]interface{}, len(tags)+1)
	for k, v := range tags {
		props[k] = v
	}
	return props
}
