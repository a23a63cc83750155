package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// ShapefileFetcher reads ESRI shapefiles (with their .dbf attributes).
type ShapefileFetcher struct {
	Root string
}

func (f *ShapefileFetcher) Fetch(ctx context.Context, category types.Category, endpoint string) ([]types.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shape, err := shp.Open(resolvePath(f.Root, endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shape.Close()

	fields := shape.Fields()
	names := make([]string, len(fields))
	for i, field := range fields {
		// Field names are fixed-size byte arrays padded with nulls
		names[i] = strings.TrimRight(string(field.Name[:]), "\x00 ")
	}

	features := make([]types.Feature, 0)
	for shape.Next() {
		n, p := shape.Shape()

		geometry := convertShape(p)
		if geometry == nil {
			continue
		}

		props := make(map[string]interface{}, len(names))
		var id types.FeatureID
		for i, name := range names {
			value := strings.TrimSpace(shape.ReadAttribute(n, i))
			props[name] = value
			if strings.EqualFold(name, "id") && value != "" {
				id = types.FeatureID(value)
			}
		}
		if id.IsZero() {
			id = types.FeatureID("shp/" + strconv.Itoa(n))
		}

		features = append(features, types.Feature{
			ID:         id,
			Category:   category,
			Geometry:   geometry,
			Properties: props,
		})
	}
	if err := shape.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shapefile: %w", err)
	}

	return features, nil
}

func convertShape(p shp.Shape) orb.Geometry {
	switch geom := p.(type) {
	case *shp.Point:
		return orb.Point{geom.X, geom.Y}
	case *shp.PolyLine:
		lines := splitParts(geom.Parts, geom.Points)
		mls := make(orb.MultiLineString, 0, len(lines))
		for _, pts := range lines {
			if len(pts) > 1 {
				mls = append(mls, orb.LineString(pts))
			}
		}
		switch len(mls) {
		case 0:
			return nil
		case 1:
			return mls[0]
		default:
			return mls
		}
	case *shp.Polygon:
		// First part is the outer ring, the rest are treated as holes
		rings := splitParts(geom.Parts, geom.Points)
		poly := make(orb.Polygon, 0, len(rings))
		for _, pts := range rings {
			if len(pts) > 2 {
				poly = append(poly, orb.Ring(pts))
			}
		}
		if len(poly) == 0 {
			return nil
		}
		return poly
	default:
		return nil
	}
}

func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			continue
		}
		pts := make([]orb.Point, 0, end-start)
		for _, pt := range points[start:end] {
			pts = append(pts, orb.Point{pt.X, pt.Y})
		}
		out = append(out, pts)
	}
	return out
}
