package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/trafficmap/internal/featurepack"
	"github.com/MeKo-Tech/trafficmap/internal/geojson"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

// PackScheme prefixes feature pack endpoints: "featurepack:<path>#<category>".
const PackScheme = "featurepack:"

// PackFetcher reads collections out of a SQLite feature pack.
type PackFetcher struct {
	Root string
}

func (f *PackFetcher) Fetch(ctx context.Context, category types.Category, endpoint string) ([]types.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, stored := ParsePackEndpoint(endpoint)
	if stored == "" {
		stored = string(category)
	}
	if path == "" {
		return nil, fmt.Errorf("feature pack endpoint %q has no path", endpoint)
	}

	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}

	r, err := featurepack.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := r.ReadCollection(stored)
	if err != nil {
		return nil, err
	}

	return geojson.Decode(category, data)
}

// ParsePackEndpoint splits "featurepack:<path>#<category>".
func ParsePackEndpoint(endpoint string) (path, category string) {
	rest := endpoint
	if len(rest) >= len(PackScheme) && strings.EqualFold(rest[:len(PackScheme)], PackScheme) {
		rest = rest[len(PackScheme):]
	}
	path, category, _ = strings.Cut(rest, "#")
	return path, category
}

// PackEndpoint builds a feature pack endpoint.
func PackEndpoint(path string, category types.Category) string {
	return PackScheme + path + "#" + string(category)
}
