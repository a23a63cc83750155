// Package datasource imports traffic features from OpenStreetMap through
// the Overpass API.
package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// roadClasses are the highway values imported into the line category.
const roadClasses = "motorway|trunk|primary|secondary|tertiary|unclassified|residential"

// OverpassDataSource fetches traffic features from Overpass API
type OverpassDataSource struct {
	client overpass.Client
	logger *slog.Logger
}

// NewOverpassDataSource creates a new Overpass data source
func NewOverpassDataSource(endpoint string, logger *slog.Logger) *OverpassDataSource {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	// Only 1 parallel request (API etiquette)
	client := overpass.NewWithSettings(endpoint, 1, http.DefaultClient)

	return &OverpassDataSource{client: client, logger: logger}
}

// FetchCategory fetches the features of one category inside bounds.
func (ds *OverpassDataSource) FetchCategory(ctx context.Context, cat types.Category, bounds types.BoundingBox) ([]types.Feature, error) {
	query, err := BuildQuery(cat, bounds)
	if err != nil {
		return nil, err
	}

	// The client does not take a context; honour cancellation before the call.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := ds.client.Query(query)
	if err != nil {
		return nil, fmt.Errorf("overpass query for %s failed: %w", cat, err)
	}

	features := ExtractCategory(&result, cat)
	ds.log().Info("Fetched features from Overpass",
		"category", cat,
		"bbox", bounds.String(),
		"features", len(features),
		"duration", time.Since(start))
	return features, nil
}

// BuildQuery creates the Overpass QL query for a category. Per-element bbox
// filters (south,west,north,east) return the complete geometry of ways
// crossing the box instead of clipping it.
func BuildQuery(cat types.Category, bounds types.BoundingBox) (string, error) {
	bbox := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon)

	switch cat {
	case types.CategoryPoint:
		return fmt.Sprintf(`
[out:json][timeout:60];
(
  node["highway"="traffic_signals"](%[1]s);
  node["crossing"="traffic_signals"](%[1]s);
);
out geom;
`, bbox), nil
	case types.CategoryLine:
		return fmt.Sprintf(`
[out:json][timeout:60];
(
  way["highway"~"^(%[2]s)(_link)?$"](%[1]s);
);
out geom;
`, bbox, roadClasses), nil
	case types.CategoryPolygon:
		return fmt.Sprintf(`
[out:json][timeout:60];
(
  way["area:highway"](%[1]s);
  way["highway"="crossing"]["area"="yes"](%[1]s);
  relation["type"="multipolygon"]["area:highway"](%[1]s);
);
out geom;
`, bbox), nil
	default:
		return "", fmt.Errorf("no overpass query for category %q", cat)
	}
}

func (ds *OverpassDataSource) log() *slog.Logger {
	if ds.logger != nil {
		return ds.logger
	}
	return slog.Default()
}
