package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"thread_harvester/internal/checkpoint"
	"thread_harvester/internal/domain"
)

// URLStore persists the discovered thread URL set.
type URLStore struct {
	db        *sqlx.DB
	txManager *TransactionManager
	state     *CrawlStateStore
}

func NewURLStore(db *sqlx.DB) *URLStore {
	return &URLStore{
		db:        db,
		txManager: NewTransactionManager(db),
		state:     NewCrawlStateStore(db),
	}
}

// Load returns the stored URLs in ascending order. An empty table means
// discovery never ran and yields checkpoint.ErrNotFound.
func (s *URLStore) Load(ctx context.Context) ([]domain.ThreadURL, error) {
	var urls []string
	if err := s.db.SelectContext(ctx, &urls, `SELECT url FROM thread_urls ORDER BY url`); err != nil {
		return nil, fmt.Errorf("select thread urls: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("thread_urls table is empty: %w", checkpoint.ErrNotFound)
	}

	out := make([]domain.ThreadURL, len(urls))
	for i, u := range urls {
		out[i] = domain.ThreadURL(u)
	}
	return out, nil
}

// Save adds urls to the stored set. URLs already present are kept as is.
func (s *URLStore) Save(ctx context.Context, urls []domain.ThreadURL) error {
	values := make([]string, len(urls))
	for i, u := range urls {
		values[i] = u.String()
	}

	return s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, s.db)

		query := `
			INSERT INTO thread_urls (url)
			SELECT unnest($1::text[])
			ON CONFLICT (url) DO NOTHING`
		if _, err := exec.ExecContext(ctx, query, pq.Array(values)); err != nil {
			return fmt.Errorf("insert thread urls: %w", err)
		}

		var total int64
		if err := sqlx.GetContext(ctx, exec, &total, `SELECT COUNT(*) FROM thread_urls`); err != nil {
			return fmt.Errorf("count thread urls: %w", err)
		}

		return s.state.Update(ctx, &domain.CrawlState{
			Phase:         domain.PhaseDiscovery,
			LastFlushedAt: time.Now().UTC(),
			Total:         total,
		})
	})
}
