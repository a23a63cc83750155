package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/MeKo-Tech/trafficmap/internal/featurepack"
	"github.com/MeKo-Tech/trafficmap/internal/geojson"
	"github.com/MeKo-Tech/trafficmap/internal/source"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/MeKo-Tech/trafficmap/internal/worker"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Bundle the feature collections into a SQLite feature pack",
	Long: `Load the configured collection of every category and store them in one
SQLite feature pack. Sources can then point at the pack with endpoints like
"featurepack:traffic.pack#point".`,
	RunE: runPack,
}

func init() {
	rootCmd.AddCommand(packCmd)

	packCmd.Flags().StringP("output-file", "o", "traffic.pack", "Feature pack to create or update")
	packCmd.Flags().String("categories", "", "Comma-separated categories to pack (default: point,line,polygon)")
	packCmd.Flags().String("name", "trafficmap", "Pack name stored in the metadata")
	packCmd.Flags().String("attribution", "© OpenStreetMap contributors", "Attribution stored in the metadata")
	packCmd.Flags().Bool("progress", false, "Show progress")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"pack.output_file", "output-file"},
		{"pack.categories", "categories"},
		{"pack.name", "name"},
		{"pack.attribution", "attribution"},
		{"pack.progress", "progress"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, packCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runPack(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	outputFile := viper.GetString("pack.output_file")
	categories, err := parseCategories(viper.GetString("pack.categories"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Collections are loaded before the pack is opened so the metadata can
	// carry their combined bounds.
	collections, err := loadCollections(ctx, newRouter(), categories, viper.GetBool("pack.progress"))
	if err != nil {
		return err
	}

	w, err := featurepack.Create(outputFile, featurepack.Metadata{
		Name:        viper.GetString("pack.name"),
		Attribution: viper.GetString("pack.attribution"),
		Description: "Traffic signals, roads and road crossings",
		Version:     "1.0",
		Bounds:      collectionBounds(collections),
	})
	if err != nil {
		return fmt.Errorf("failed to create feature pack: %w", err)
	}

	for _, cat := range categories {
		if err := packCollection(w, outputFile, cat, collections[cat]); err != nil {
			w.Close()
			return err
		}
	}

	return w.Close()
}

func packCollection(w *featurepack.Writer, outputFile string, cat types.Category, features []types.Feature) error {
	data, err := geojson.ToGeoJSONBytes(features, nil)
	if err != nil {
		return err
	}
	entry := featurepack.Entry{Category: string(cat), Endpoint: endpointFor(cat), FeatureCount: len(features)}
	if err := w.WriteCollection(entry, data); err != nil {
		return err
	}
	logger.Info("Collection packed", "category", cat, "from", entry.Endpoint, "features", len(features),
		"endpoint", source.PackEndpoint(outputFile, cat))
	return nil
}

// loadCollections fetches every category concurrently. Any failure fails
// the pack.
func loadCollections(ctx context.Context, fetcher source.Fetcher, categories []types.Category, showProgress bool) (map[types.Category][]types.Feature, error) {
	var mu sync.Mutex
	collections := make(map[types.Category][]types.Feature, len(categories))

	tasks := make([]worker.Task, 0, len(categories))
	for _, cat := range categories {
		tasks = append(tasks, worker.Task{Category: cat, Endpoint: endpointFor(cat)})
	}

	runner := worker.RunnerFunc(func(ctx context.Context, task worker.Task) (worker.Output, error) {
		features, err := fetcher.Fetch(ctx, task.Category, task.Endpoint)
		if err != nil {
			return worker.Output{}, fmt.Errorf("%s: %w", task.Endpoint, err)
		}
		mu.Lock()
		collections[task.Category] = features
		mu.Unlock()
		return worker.Output{Path: task.Endpoint, Count: len(features)}, nil
	})

	if _, err := runTasks(ctx, "categories", tasks, runner, len(tasks), showProgress, false); err != nil {
		return nil, err
	}
	return collections, nil
}

// collectionBounds is the extent of all features as minLon,minLat,maxLon,maxLat.
func collectionBounds(collections map[types.Category][]types.Feature) [4]float64 {
	var bound orb.Bound
	found := false
	for _, features := range collections {
		for _, f := range features {
			if f.Geometry == nil {
				continue
			}
			if !found {
				bound = f.Geometry.Bound()
				found = true
				continue
			}
			bound = bound.Union(f.Geometry.Bound())
		}
	}
	if !found {
		return [4]float64{}
	}
	return [4]float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()}
}
