package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"thread_harvester/internal/app"
	"thread_harvester/internal/browser"
	"thread_harvester/internal/config"
	"thread_harvester/internal/scheduler"
	"thread_harvester/internal/service"
	"thread_harvester/internal/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := app.SetupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = app.SetupLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("extraction failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := app.SignalContext(logger)
	defer cancel()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	pub := app.OpenPublisher(cfg.RabbitMQ, logger)
	if pub != nil {
		defer pub.Close()
	}

	layouts := service.LayoutsFromConfig(cfg.Extraction.Layouts)
	extraction := service.NewExtractionService(
		session.NewFileProvider(cfg.Browser.SessionFile),
		browser.NewLauncher(app.BrowserOptions(cfg), logger),
		stores.URLs,
		stores.Threads,
		service.NewExtractor(layouts, cfg.Forum.TitleDelimiter, cfg.Timeouts.Selector, logger),
		pub,
		logger,
		cfg.Extraction,
	)

	sched := scheduler.NewScheduler(extraction, cfg.Extraction.Interval, logger)

	logger.Info("starting thread extraction",
		"layouts", len(layouts),
		"batch_size", cfg.Extraction.BatchSize,
		"interval", cfg.Extraction.Interval,
		"storage", cfg.Storage.Driver,
		"publish", cfg.RabbitMQ.Enabled,
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
