package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/MeKo-Tech/trafficmap/internal/datasource"
	"github.com/MeKo-Tech/trafficmap/internal/geojson"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/MeKo-Tech/trafficmap/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Import traffic features from OpenStreetMap",
	Long: `Fetch traffic signals, roads and road-crossing areas inside a bounding box
from the Overpass API and write one GeoJSON collection per category into the
data directory (semaphores.json, line.json, road_cros.json).`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().String("bbox", "", "Bounding box: minLon,minLat,maxLon,maxLat (e.g., \"9.7,52.3,9.9,52.4\")")
	fetchCmd.Flags().Float64("pad", 0, "Grow the bbox by this fraction of its size on each side")
	fetchCmd.Flags().String("categories", "", "Comma-separated categories to fetch (default: point,line,polygon)")
	fetchCmd.Flags().String("overpass-url", "", "Overpass API endpoint (default: "+datasource.DefaultEndpoint+")")
	fetchCmd.Flags().IntP("workers", "w", 1, "Number of parallel queries")
	fetchCmd.Flags().Bool("progress", true, "Show progress")
	fetchCmd.Flags().Bool("allow-failures", false, "Keep the categories that succeeded even if others fail")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"fetch.bbox", "bbox"},
		{"fetch.pad", "pad"},
		{"fetch.categories", "categories"},
		{"fetch.overpass_url", "overpass-url"},
		{"fetch.workers", "workers"},
		{"fetch.progress", "progress"},
		{"fetch.allow_failures", "allow-failures"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, fetchCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	bboxStr := viper.GetString("fetch.bbox")
	dataDir := viper.GetString("data-dir")

	if bboxStr == "" {
		return fmt.Errorf("--bbox is required")
	}
	bbox, err := parseBBox(bboxStr)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}
	bounds := types.BoundingBox{MinLon: bbox[0], MinLat: bbox[1], MaxLon: bbox[2], MaxLat: bbox[3]}.
		ExpandByFraction(viper.GetFloat64("fetch.pad"))

	categories, err := parseCategories(viper.GetString("fetch.categories"))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	ds := datasource.NewOverpassDataSource(viper.GetString("fetch.overpass_url"), logger)

	logger.Info("Starting OSM import",
		"bbox", bounds.String(),
		"categories", categories,
		"data_dir", dataDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tasks := make([]worker.Task, 0, len(categories))
	for _, cat := range categories {
		tasks = append(tasks, worker.Task{Category: cat, Endpoint: filepath.Join(dataDir, collectionFile(cat))})
	}

	runner := worker.RunnerFunc(func(ctx context.Context, task worker.Task) (worker.Output, error) {
		features, err := ds.FetchCategory(ctx, task.Category, bounds)
		if err != nil {
			return worker.Output{}, err
		}
		if err := writeCollection(task.Endpoint, features); err != nil {
			return worker.Output{}, err
		}
		return worker.Output{Path: task.Endpoint, Count: len(features)}, nil
	})

	results, err := runTasks(ctx, "categories", tasks, runner, viper.GetInt("fetch.workers"), viper.GetBool("fetch.progress"), viper.GetBool("fetch.allow_failures"))
	for _, r := range results {
		if r.Err == nil {
			logger.Info("Collection written", "category", r.Task.Category, "path", r.Output.Path, "features", r.Output.Count)
		}
	}
	return err
}

// writeCollection writes features as a GeoJSON FeatureCollection, replacing
// path atomically.
func writeCollection(path string, features []types.Feature) error {
	data, err := geojson.ToGeoJSONBytes(features, nil)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// parseBBox parses a bounding box string "minLon,minLat,maxLon,maxLat" into [4]float64.
func parseBBox(s string) ([4]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return [4]float64{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}

	var bbox [4]float64
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [4]float64{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		bbox[i] = val
	}

	if bbox[0] >= bbox[2] {
		return [4]float64{}, fmt.Errorf("minLon (%.4f) must be < maxLon (%.4f)", bbox[0], bbox[2])
	}
	if bbox[1] >= bbox[3] {
		return [4]float64{}, fmt.Errorf("minLat (%.4f) must be < maxLat (%.4f)", bbox[1], bbox[3])
	}

	return bbox, nil
}
