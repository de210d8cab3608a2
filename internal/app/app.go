// Package app holds the wiring shared by the command binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"thread_harvester/internal/browser"
	"thread_harvester/internal/checkpoint"
	"thread_harvester/internal/config"
	"thread_harvester/internal/domain"
	"thread_harvester/internal/publisher"
	"thread_harvester/internal/service"
	"thread_harvester/internal/storage/postgres"
)

func SetupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Stores are the checkpoint backends selected by storage.driver.
type Stores struct {
	URLs    service.URLStore
	Threads service.ThreadStore

	db *sqlx.DB
}

func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

		logProgress(ctx, postgres.NewCrawlStateStore(db), logger)

		return &Stores{
			URLs:    postgres.NewURLStore(db),
			Threads: postgres.NewThreadStore(db),
			db:      db,
		}, nil

	default:
		logger.Info("using file checkpoints",
			"urls_file", cfg.Storage.URLsFile,
			"threads_file", cfg.Storage.ThreadsFile,
		)
		return &Stores{
			URLs:    checkpoint.NewFileURLStore(cfg.Storage.URLsFile),
			Threads: checkpoint.NewFileThreadStore(cfg.Storage.ThreadsFile),
		}, nil
	}
}

type progressReader interface {
	Get(ctx context.Context, phase string) (*domain.CrawlState, error)
}

// logProgress reports where earlier runs left each phase.
func logProgress(ctx context.Context, states progressReader, logger *slog.Logger) {
	for _, phase := range []string{domain.PhaseDiscovery, domain.PhaseExtraction} {
		st, err := states.Get(ctx, phase)
		if err != nil {
			logger.Warn("read crawl state", "phase", phase, "error", err)
			continue
		}
		if st.LastFlushedAt.IsZero() {
			logger.Info("no stored progress", "phase", phase)
			continue
		}
		logger.Info("stored progress",
			"phase", phase,
			"total", st.Total,
			"last_flushed_at", st.LastFlushedAt,
		)
	}
}

func (s *Stores) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// OpenPublisher returns nil when publishing is disabled. The broker is
// contacted on the first publish, not here.
func OpenPublisher(cfg config.RabbitMQConfig, logger *slog.Logger) service.Publisher {
	if !cfg.Enabled {
		return nil
	}

	return publisher.NewLazy(publisher.Config{
		URL:        cfg.URL,
		Exchange:   cfg.Exchange,
		RoutingKey: cfg.RoutingKey,
		QueueName:  cfg.QueueName,
	}, logger)
}

func BrowserOptions(cfg *config.Config) browser.Options {
	return browser.Options{
		Headless:   cfg.Browser.Headless,
		UserAgent:  cfg.Browser.UserAgent,
		ExecPath:   cfg.Browser.ExecPath,
		Navigation: cfg.Timeouts.Navigation,
		Action:     cfg.Timeouts.Selector,
	}
}
