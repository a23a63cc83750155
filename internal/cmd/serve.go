package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/trafficmap/internal/hover"
	"github.com/MeKo-Tech/trafficmap/internal/interaction"
	"github.com/MeKo-Tech/trafficmap/internal/selection"
	"github.com/MeKo-Tech/trafficmap/internal/server"
	"github.com/MeKo-Tech/trafficmap/internal/surface"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the feature layers, hover and selection state over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().Float64("tolerance", 0.0001, "Hit-test tolerance in degrees for lon/lat hover and click")
	serveCmd.Flags().Int("tile-size", 256, "Overlay tile size in pixels")
	serveCmd.Flags().Int("tile-cache", 512, "Number of rendered overlay tiles kept in memory")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served tiles")
	serveCmd.Flags().Duration("load-timeout", 30*time.Second, "Timeout per layer load")
	serveCmd.Flags().Duration("keep-alive", 15*time.Second, "Interval of keep-alive pings on the selection event stream")
	serveCmd.Flags().String("redis-addr", "", "Mirror the selection into Redis at host:port (disabled when empty)")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database")
	serveCmd.Flags().String("redis-key", "", "Redis key holding the current selection (default trafficmap:selection)")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.tolerance", "tolerance")
	mustBind("serve.tile_size", "tile-size")
	mustBind("serve.tile_cache", "tile-cache")
	mustBind("serve.cache_control", "cache-control")
	mustBind("serve.load_timeout", "load-timeout")
	mustBind("serve.keep_alive", "keep-alive")
	mustBind("serve.redis_addr", "redis-addr")
	mustBind("serve.redis_password", "redis-password")
	mustBind("serve.redis_db", "redis-db")
	mustBind("serve.redis_key", "redis-key")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	dataDir := viper.GetString("data-dir")
	loadTimeout := viper.GetDuration("serve.load_timeout")

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	table := hover.NewTable()
	layers, err := buildLayers(newRouter(), catalog, table)
	if err != nil {
		return err
	}

	surf := surface.NewMemory(surface.Config{
		TileSize:  viper.GetInt("serve.tile_size"),
		CacheSize: viper.GetInt("serve.tile_cache"),
		Logger:    logger,
	})
	// Painter's order: areas below lines below markers.
	for _, cat := range []types.Category{types.CategoryPolygon, types.CategoryLine, types.CategoryPoint} {
		if l, ok := layers.Get(cat); ok {
			surf.AddLayer(l)
		}
	}

	ctrl := hover.NewController(layers, catalog, table, hover.WithRestyler(surf), hover.WithLogger(logger))
	store := selection.NewStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if client := selection.OpenRedis(
		viper.GetString("serve.redis_addr"),
		viper.GetString("serve.redis_password"),
		viper.GetInt("serve.redis_db"),
	); client != nil {
		defer client.Close()
		mirror := selection.NewRedisMirror(selection.MirrorConfig{
			Client: client,
			Key:    viper.GetString("serve.redis_key"),
			Logger: logger,
		})
		go mirror.Run(ctx, store)
		logger.Info("Mirroring selection to Redis", "addr", viper.GetString("serve.redis_addr"))
	}

	srv := server.New(server.Config{
		Layers:    layers,
		Catalog:   catalog,
		Hover:     ctrl,
		Selection: store,
		Interaction: interaction.New(interaction.Config{
			Surface:   surf,
			Layers:    layers,
			Hover:     ctrl,
			Selection: store,
			Tolerance: viper.GetFloat64("serve.tolerance"),
			Logger:    logger,
		}),
		Surface:      surf,
		DataDir:      dataDir,
		CacheControl: viper.GetString("serve.cache_control"),
		LoadTimeout:  loadTimeout,
		KeepAlive:    viper.GetDuration("serve.keep_alive"),
		Logger:       logger,
	})

	// Loads run in the background; failures are logged and show up in
	// /api/layers, and a layer can be retried with its reload endpoint.
	loadCtx, cancelLoads := context.WithTimeout(ctx, loadTimeout)
	pending := layers.LoadAll(loadCtx)
	go func() {
		defer cancelLoads()
		for cat, p := range pending {
			if _, err := p.Wait(loadCtx); err != nil {
				logger.Warn("Layer unavailable", "category", cat, "endpoint", endpointFor(cat), "error", err)
			}
		}
		surf.Invalidate()
	}()

	logger.Info("trafficmap server listening",
		"addr", addr,
		"data_dir", dataDir,
		"point", endpointFor(types.CategoryPoint),
		"line", endpointFor(types.CategoryLine),
		"polygon", endpointFor(types.CategoryPolygon),
	)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// Ends open event streams on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
