package cmd

import (
	"fmt"
	"path"

	"github.com/MeKo-Tech/trafficmap/internal/hover"
	"github.com/MeKo-Tech/trafficmap/internal/layer"
	"github.com/MeKo-Tech/trafficmap/internal/source"
	"github.com/MeKo-Tech/trafficmap/internal/style"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/spf13/viper"
)

// defaultEndpoints are the site-relative collections of each category.
var defaultEndpoints = map[types.Category]string{
	types.CategoryPoint:   "/data/semaphores.json",
	types.CategoryLine:    "/data/line.json",
	types.CategoryPolygon: "/data/road_cros.json",
}

func init() {
	for cat, endpoint := range defaultEndpoints {
		viper.SetDefault("sources."+string(cat), endpoint)
	}
	viper.SetDefault("sources.root", ".")
}

// endpointFor returns the configured endpoint of a category.
func endpointFor(cat types.Category) string {
	return viper.GetString("sources." + string(cat))
}

// collectionFile is the file name a category is stored under in the data
// dir, taken from its default endpoint.
func collectionFile(cat types.Category) string {
	return path.Base(defaultEndpoints[cat])
}

// newRouter builds the fetcher that resolves every supported endpoint
// form. Relative endpoints go to sources.base_url when set and are read
// from sources.root otherwise.
func newRouter() *source.Router {
	root := viper.GetString("sources.root")
	return &source.Router{
		HTTP:      source.NewHTTPFetcher(viper.GetString("sources.base_url"), viper.GetDuration("sources.timeout")),
		File:      &source.FileFetcher{Root: root},
		Shapefile: &source.ShapefileFetcher{Root: root},
		Pack:      &source.PackFetcher{Root: root},
	}
}

// loadCatalog builds the style catalog from the "styles" config section.
func loadCatalog() (*style.Catalog, error) {
	var specs map[style.Name]style.Spec
	if err := viper.UnmarshalKey("styles", &specs); err != nil {
		return nil, fmt.Errorf("invalid styles config: %w", err)
	}
	catalog, err := style.NewCatalog(specs)
	if err != nil {
		return nil, fmt.Errorf("invalid styles config: %w", err)
	}
	return catalog, nil
}

// buildLayers creates one idle source and layer per category.
func buildLayers(fetcher source.Fetcher, catalog *style.Catalog, table *hover.Table) (*layer.Set, error) {
	layers := make([]*layer.Layer, 0, len(types.Categories))
	for _, cat := range types.Categories {
		src := source.New(source.Config{
			Category: cat,
			Endpoint: endpointFor(cat),
			Fetcher:  fetcher,
			Logger:   logger,
		})
		layers = append(layers, layer.New(src, catalog, table))
	}
	return layer.NewSet(layers...)
}
