package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trafficmap",
	Short: "Interactive traffic-infrastructure map layers",
	Long: `trafficmap loads traffic signals, road lines and road-crossing areas as
GeoJSON layers, styles them from a named style catalog and tracks which
feature is hovered and which one is selected.

It serves the layers and the interaction state over HTTP, imports the data
from OpenStreetMap and bundles it into SQLite feature packs.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Directory holding the GeoJSON collections")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("base-url", "", "Base URL relative source endpoints are fetched from (default: read from --data-dir)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Per-request timeout for HTTP sources (default 30s)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"data-dir", "data-dir"},
		{"verbose", "verbose"},
		{"log-format", "log-format"},
		{"sources.base_url", "base-url"},
		{"sources.timeout", "timeout"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, rootCmd.PersistentFlags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	_ = godotenv.Load(".env")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TRAFFICMAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	configErr := viper.ReadInConfig()

	initLogging()

	if configErr == nil {
		logger.Debug("Using config file", "path", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		logger.Warn("Failed to read config file", "path", cfgFile, "error", configErr)
	}
}

// initLogging installs the process logger on stderr.
func initLogging() {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(viper.GetString("log-format"), "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	logger = slog.New(h)
	slog.SetDefault(logger)
}
