package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/dzfranklin/gtfsreload"
	"github.com/dzfranklin/gtfsreload/ingest"
	"github.com/dzfranklin/gtfsreload/internal/config"
	"github.com/dzfranklin/gtfsreload/internal/metrics"
	"github.com/spf13/pflag"
)

func usageAndDie() {
	fmt.Println("Example usage:\n" +
		"    gtfsreload --source <google_transit.zip> --dsn <gtfs.db> --create-schema\n" +
		"    gtfsreload --driver postgres --dsn postgres://localhost/gtfs --source s3://feeds/cta.zip\n" +
		"    gtfsreload --dsn <gtfs.db> --export <out.zip>")
	pflag.PrintDefaults()
	os.Exit(1)
}

func main() {
	configPath := pflag.String("config", "", "Path to a yaml config file (default ./gtfsreload.yaml if present)")
	exportPath := pflag.StringP("export", "e", "", "Export the store to a GTFS zip instead of loading")
	help := pflag.BoolP("help", "h", false, "Show usage")
	config.RegisterFlags(pflag.CommandLine)

	pflag.Parse()
	if *help || pflag.NArg() > 0 {
		usageAndDie()
	}

	cfg, err := config.Load(*configPath, pflag.CommandLine)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *exportPath != "" {
		err = export(ctx, cfg, *exportPath, logger)
	} else {
		err = load(ctx, cfg, logger)
	}

	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	} else {
		fmt.Println("All done")
	}
}

func load(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	opts := gtfsreload.CycleOptions{
		Source: cfg.Source.URL,
		S3: ingest.S3Options{
			Region:          cfg.Source.S3.Region,
			Endpoint:        cfg.Source.S3.Endpoint,
			PathStyle:       cfg.Source.S3.PathStyle,
			AccessKeyID:     cfg.Source.S3.AccessKeyID,
			SecretAccessKey: cfg.Source.S3.SecretAccessKey,
		},
		WorkDir:      cfg.WorkDir,
		Driver:       cfg.Store.Driver,
		DSN:          cfg.Store.DSN,
		CreateSchema: cfg.CreateSchema,
		Validate:     cfg.Validate,
		Logger:       logger,
	}
	if cfg.ClipFeature != "" {
		feature, err := os.ReadFile(cfg.ClipFeature)
		if err != nil {
			return err
		}
		opts.ClipFeature = string(feature)
	}
	if cfg.MetricsTextfile != "" {
		opts.Metrics = metrics.New()
	}

	_, err := gtfsreload.RunCycle(ctx, opts)

	if opts.Metrics != nil {
		if writeErr := opts.Metrics.WriteTextfile(cfg.MetricsTextfile); writeErr != nil {
			logger.Error("write metrics", "path", cfg.MetricsTextfile, "error", writeErr)
		}
	}
	return err
}

func export(ctx context.Context, cfg *config.Config, outputPath string, logger *slog.Logger) error {
	store, err := gtfsreload.OpenStore(ctx, cfg.Store.Driver, cfg.Store.DSN, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return gtfsreload.Export(ctx, store, outputPath)
}
