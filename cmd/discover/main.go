package main

import (
	"flag"
	"log/slog"
	"os"

	"thread_harvester/internal/app"
	"thread_harvester/internal/browser"
	"thread_harvester/internal/config"
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
		logger.Error("discovery failed", "error", err)
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

	discovery := service.NewDiscoveryService(
		session.NewFileProvider(cfg.Browser.SessionFile),
		browser.NewLauncher(app.BrowserOptions(cfg), logger),
		stores.URLs,
		service.NewPaginator(service.DefaultStrategies(cfg.Timeouts.Probe), logger),
		logger,
		cfg,
	)

	_, err = discovery.Run(ctx)
	return err
}
