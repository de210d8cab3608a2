package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"thread_harvester/internal/domain"
)

type CrawlStateStore struct {
	db *sqlx.DB
}

func NewCrawlStateStore(db *sqlx.DB) *CrawlStateStore {
	return &CrawlStateStore{db: db}
}

// Get returns the progress marker of phase, or a zero marker if the phase
// never persisted anything.
func (s *CrawlStateStore) Get(ctx context.Context, phase string) (*domain.CrawlState, error) {
	var state domain.CrawlState
	query := `
		SELECT id, phase, last_flushed_at, total
		FROM crawl_state
		WHERE phase = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, phase)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.CrawlState{Phase: phase}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *CrawlStateStore) Update(ctx context.Context, state *domain.CrawlState) error {
	query := `
		INSERT INTO crawl_state (phase, last_flushed_at, total)
		VALUES ($1, $2, $3)
		ON CONFLICT (phase) DO UPDATE SET
			last_flushed_at = EXCLUDED.last_flushed_at,
			total = EXCLUDED.total`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.Phase,
		state.LastFlushedAt,
		state.Total,
	)
	return err
}
