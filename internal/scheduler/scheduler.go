package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"thread_harvester/internal/checkpoint"
	"thread_harvester/internal/domain"
	"thread_harvester/internal/session"
)

// Extractor runs one extraction pass.
type Extractor interface {
	Run(ctx context.Context) (*domain.ExtractionStats, error)
}

// Scheduler repeats extraction passes so threads skipped by one pass are
// retried by the next.
type Scheduler struct {
	extractor Extractor
	interval  time.Duration
	logger    *slog.Logger
}

func NewScheduler(extractor Extractor, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		extractor: extractor,
		interval:  interval,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start runs a pass immediately. With a zero interval it returns that pass's
// error; otherwise it keeps running a pass per tick until ctx is done or a
// pass fails on a missing session or URL set, which no retry can repair.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		_, err := s.extractor.Run(ctx)
		return err
	}

	s.logger.Info("scheduler started", "interval", s.interval)

	if err := s.runPass(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runPass(ctx); err != nil {
				return err
			}
		}
	}
}

// runPass returns only errors that stop the scheduler.
func (s *Scheduler) runPass(ctx context.Context) error {
	stats, err := s.extractor.Run(ctx)
	if err != nil {
		if isFatal(err) {
			s.logger.Error("extraction cannot start, stopping scheduler", "error", err)
			return err
		}
		s.logger.Error("extraction pass failed", "error", err)
		return nil
	}
	if stats != nil && stats.Skipped > 0 {
		s.logger.Info("threads left for next pass", "skipped", stats.Skipped, "next_in", s.interval)
	}
	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, session.ErrMissing) || errors.Is(err, checkpoint.ErrNotFound)
}
