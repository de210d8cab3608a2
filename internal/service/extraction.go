package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"thread_harvester/internal/checkpoint"
	"thread_harvester/internal/config"
	"thread_harvester/internal/domain"
)

type ExtractionService struct {
	sessions  SessionProvider
	launcher  Launcher
	urls      URLStore
	threads   ThreadStore
	extractor *Extractor
	publisher Publisher
	logger    *slog.Logger
	config    config.ExtractionConfig
}

// NewExtractionService wires phase 2. publisher may be nil.
func NewExtractionService(
	sessions SessionProvider,
	launcher Launcher,
	urls URLStore,
	threads ThreadStore,
	extractor *Extractor,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.ExtractionConfig,
) *ExtractionService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &ExtractionService{
		sessions:  sessions,
		launcher:  launcher,
		urls:      urls,
		threads:   threads,
		extractor: extractor,
		publisher: publisher,
		logger:    logger.With("phase", domain.PhaseExtraction),
		config:    cfg,
	}
}

// Run performs phase 2: every stored thread URL without a record is visited
// once, and new records are flushed every BatchSize threads and on exit.
func (s *ExtractionService) Run(ctx context.Context) (stats *domain.ExtractionStats, err error) {
	startTime := time.Now()

	st, err := s.sessions.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	requested, err := s.urls.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load thread urls: %w", err)
	}

	state, err := s.threads.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	pending := checkpoint.Missing(requested, state)
	stats = &domain.ExtractionStats{
		Requested:   len(requested),
		AlreadyDone: len(state),
		Pending:     len(pending),
	}

	s.logger.Info("starting extraction",
		"requested", stats.Requested,
		"already_done", stats.AlreadyDone,
		"pending", stats.Pending,
		"batch_size", s.config.BatchSize,
	)

	if len(pending) == 0 {
		stats.Duration = time.Since(startTime)
		s.logger.Info("nothing to extract")
		return stats, nil
	}

	page, err := s.launcher.Launch(ctx, st)
	if err != nil {
		return stats, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			s.logger.Warn("close browser", "error", err)
		}
	}()

	dirty := 0
	flush := func(ctx context.Context) error {
		if err := s.threads.Flush(ctx, state); err != nil {
			return fmt.Errorf("flush checkpoint: %w", err)
		}
		stats.Flushes++
		s.logger.Info("checkpoint flushed", "records", len(state), "batch", dirty)
		dirty = 0
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extraction panicked: %v", r)
			s.logger.Error("extraction panicked", "panic", r)
		}
		if dirty > 0 {
			// The run context may already be cancelled; the last batch is
			// still written.
			if ferr := flush(context.WithoutCancel(ctx)); ferr != nil {
				s.logger.Error("final flush failed", "error", ferr)
				if err == nil {
					err = ferr
				}
			}
		}
		stats.Duration = time.Since(startTime)
		s.logger.Info("extraction completed",
			"extracted", stats.Extracted,
			"skipped", stats.Skipped,
			"flushes", stats.Flushes,
			"published", stats.Published,
			"errors", stats.Errors,
			"duration", stats.Duration,
		)
	}()

	limiter := newLimiter(s.config.PolitenessDelay)

	for i, u := range pending {
		if err := limiter.Wait(ctx); err != nil {
			return stats, err
		}

		rec, err := s.extractor.Extract(ctx, page, u)
		if err != nil {
			return stats, err
		}
		if rec == nil {
			stats.Skipped++
			continue
		}

		if !state.Put(*rec) {
			continue
		}
		stats.Extracted++
		dirty++

		s.publish(ctx, rec, stats)

		s.logger.Debug("thread stored", "url", u.String(), "progress", i+1, "pending", len(pending))

		if dirty >= s.config.BatchSize {
			if err := flush(ctx); err != nil {
				return stats, err
			}
		}
	}

	return stats, nil
}

func (s *ExtractionService) publish(ctx context.Context, rec *domain.ThreadRecord, stats *domain.ExtractionStats) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, rec); err != nil {
		stats.Errors++
		s.logger.Warn("publish failed", "url", rec.URL.String(), "error", err)
		return
	}
	stats.Published++
}

// newLimiter spaces page visits by delay; the first visit is immediate.
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
