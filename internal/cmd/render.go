package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/MeKo-Tech/trafficmap/internal/hover"
	"github.com/MeKo-Tech/trafficmap/internal/surface"
	"github.com/MeKo-Tech/trafficmap/internal/tile"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/MeKo-Tech/trafficmap/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render transparent overlay tiles of the feature layers",
	Long: `Render the three feature layers with their base styles into transparent
PNG overlay tiles (z{z}_x{x}_y{y}.png) for every tile of a bounding box.`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().String("bbox", "", "Bounding box: minLon,minLat,maxLon,maxLat")
	renderCmd.Flags().Int("zoom-min", 0, "Minimum zoom level")
	renderCmd.Flags().Int("zoom-max", 0, "Maximum zoom level")
	renderCmd.Flags().String("output-dir", "./tiles", "Output directory for overlay tiles")
	renderCmd.Flags().Int("tile-size", 256, "Tile size in pixels")
	renderCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	renderCmd.Flags().Bool("progress", true, "Show progress bar")
	renderCmd.Flags().Bool("force", false, "Overwrite tiles that already exist")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"render.bbox", "bbox"},
		{"render.zoom_min", "zoom-min"},
		{"render.zoom_max", "zoom-max"},
		{"render.output_dir", "output-dir"},
		{"render.tile_size", "tile-size"},
		{"render.workers", "workers"},
		{"render.progress", "progress"},
		{"render.force", "force"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, renderCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	bboxStr := viper.GetString("render.bbox")
	zoomMin := viper.GetInt("render.zoom_min")
	zoomMax := viper.GetInt("render.zoom_max")
	outputDir := viper.GetString("render.output_dir")
	force := viper.GetBool("render.force")

	bbox, err := parseBBox(bboxStr)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}
	if zoomMin <= 0 || zoomMax <= 0 {
		return fmt.Errorf("--zoom-min and --zoom-max are required")
	}
	if zoomMin > zoomMax {
		return fmt.Errorf("--zoom-min (%d) must be <= --zoom-max (%d)", zoomMin, zoomMax)
	}
	if zoomMax > tile.MaxZoom {
		return fmt.Errorf("--zoom-max must be <= %d", tile.MaxZoom)
	}

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	layers, err := buildLayers(newRouter(), catalog, hover.NewTable())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for cat, p := range layers.LoadAll(ctx) {
		if _, err := p.Wait(ctx); err != nil {
			return fmt.Errorf("failed to load %s layer: %w", cat, err)
		}
	}

	surf := surface.NewMemory(surface.Config{TileSize: viper.GetInt("render.tile_size"), CacheSize: 1, Logger: logger})
	for _, cat := range []types.Category{types.CategoryPolygon, types.CategoryLine, types.CategoryPoint} {
		if l, ok := layers.Get(cat); ok {
			surf.AddLayer(l)
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tiles := tile.TilesInBBox(bbox, zoomMin, zoomMax)
	logger.Info("Starting overlay render",
		"bbox", bboxStr,
		"zoom_range", fmt.Sprintf("%d-%d", zoomMin, zoomMax),
		"tiles", len(tiles),
		"output_dir", outputDir,
	)

	tasks := make([]worker.Task, 0, len(tiles))
	for _, c := range tiles {
		tasks = append(tasks, worker.Task{Coords: c})
	}

	runner := worker.RunnerFunc(func(ctx context.Context, task worker.Task) (worker.Output, error) {
		path := filepath.Join(outputDir, task.Coords.Path("png"))
		if !force {
			if _, err := os.Stat(path); err == nil {
				return worker.Output{Path: path}, nil
			}
		}
		// Bypasses the tile cache, which a bulk render would only churn.
		data, err := surface.EncodePNG(surf.RenderTile(task.Coords))
		if err != nil {
			return worker.Output{}, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return worker.Output{}, fmt.Errorf("failed to write tile: %w", err)
		}
		return worker.Output{Path: path, Count: 1}, nil
	})

	_, err = runTasks(ctx, "tiles", tasks, runner, viper.GetInt("render.workers"), viper.GetBool("render.progress"), false)
	return err
}
