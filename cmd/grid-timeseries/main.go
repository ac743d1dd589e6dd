package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/catalog"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/config"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/logging"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/packager"
)

var (
	configPath  string
	catalogPath string
	rawURL      string
	outDir      string
	subset      []string
	cutoff      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "grid-timeseries",
		Short: "Build the power system time series package",
		Long: `grid-timeseries reads raw transmission operator files listed in a source
catalog, repairs gaps, derives national aggregates and publishes the
tables with their metadata.`,
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "sources", "", "Source catalog (overrides config)")
	rootCmd.Flags().StringVar(&rawURL, "raw", "", "Raw file bucket URL, e.g. file:///data/raw (overrides config)")
	rootCmd.Flags().StringVar(&outDir, "out", "", "Local output directory (overrides config)")
	rootCmd.Flags().StringSliceVar(&subset, "subset", nil, "Only read these sources")
	rootCmd.Flags().StringVar(&cutoff, "end", "", "Drop data after this RFC 3339 time")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the source catalog",
		Args:  cobra.NoArgs,
		RunE:  validate,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s (%s)\n", packager.ProducerName, packager.Version, packager.GitSHA)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func load() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if catalogPath != "" {
		cfg.Source.Catalog = catalogPath
	}
	if rawURL != "" {
		cfg.Source.URL = rawURL
	}
	if outDir != "" {
		cfg.Storage.Backend = "local"
		cfg.Storage.LocalDir = outDir
	}
	if len(subset) > 0 {
		cfg.Run.Subset = subset
	}
	if cutoff != "" {
		end, err := time.Parse(time.RFC3339, cutoff)
		if err != nil {
			return cfg, fmt.Errorf("invalid --end: %w", err)
		}
		cfg.Run.End = end
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	logging.Setup(logging.Config(cfg.Logging))
	log := logging.Component("main")
	log.Info("starting", "name", packager.ProducerName, "version", packager.Version, "git_sha", packager.GitSHA)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := packager.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn("close failed", "error", err)
		}
	}()

	if cfg.Metrics.Enabled && cfg.Metrics.Address != "" {
		go func() {
			if err := p.Metrics().Serve(ctx, cfg.Metrics.Address); err != nil {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
		log.Info("metrics server listening", "address", cfg.Metrics.Address)
	}

	sum, err := p.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown complete", "run_id", p.RunID())
		}
		return err
	}

	for _, uri := range sum.Published.URIs {
		log.Info("published", "uri", uri)
	}
	return nil
}

func validate(cmd *cobra.Command, args []string) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	logging.Setup(logging.Config(cfg.Logging))

	cat, err := catalog.Load(cfg.Source.Catalog)
	if err != nil {
		return err
	}
	if len(cfg.Run.Subset) > 0 {
		if cat, err = cat.Subset(cfg.Run.Subset); err != nil {
			return err
		}
	}
	slog.Info("configuration valid",
		"sources", len(cat.Sources()),
		"entries", len(cat.Entries()),
		"resolutions", cat.Resolutions(),
		"storage", cfg.Storage.Backend,
	)
	return nil
}
