package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"thread_harvester/internal/checkpoint"
	"thread_harvester/internal/domain"
)

// ThreadStore persists extraction progress in Postgres. Records are
// append-only: a URL already stored is never rewritten.
type ThreadStore struct {
	db        *sqlx.DB
	txManager *TransactionManager
	messages  *MessageStore
	state     *CrawlStateStore

	persisted map[domain.ThreadURL]struct{}
}

func NewThreadStore(db *sqlx.DB) *ThreadStore {
	return &ThreadStore{
		db:        db,
		txManager: NewTransactionManager(db),
		messages:  NewMessageStore(db),
		state:     NewCrawlStateStore(db),
		persisted: make(map[domain.ThreadURL]struct{}),
	}
}

type threadRow struct {
	ID    int64  `db:"id"`
	URL   string `db:"url"`
	Title string `db:"title"`
}

func (s *ThreadStore) Load(ctx context.Context) (checkpoint.State, error) {
	var rows []threadRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, url, title FROM threads`); err != nil {
		return nil, fmt.Errorf("select threads: %w", err)
	}

	messages, err := s.messages.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	state := checkpoint.NewState()
	for _, r := range rows {
		u := domain.ThreadURL(r.URL)
		msgs := messages[r.ID]
		if msgs == nil {
			msgs = []domain.Message{}
		}
		state.Put(domain.ThreadRecord{URL: u, Title: r.Title, Messages: msgs})
		s.persisted[u] = struct{}{}
	}
	return state, nil
}

// Flush inserts the records of state not yet stored, in one transaction,
// and records the extraction progress marker.
func (s *ThreadStore) Flush(ctx context.Context, state checkpoint.State) error {
	var fresh []domain.ThreadRecord
	for _, u := range state.Keys() {
		if _, ok := s.persisted[u]; !ok {
			fresh = append(fresh, state[u])
		}
	}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		for i := range fresh {
			if err := s.insert(ctx, &fresh[i]); err != nil {
				return fmt.Errorf("insert thread %s: %w", fresh[i].URL, err)
			}
		}
		return s.state.Update(ctx, &domain.CrawlState{
			Phase:         domain.PhaseExtraction,
			LastFlushedAt: time.Now().UTC(),
			Total:         int64(len(state)),
		})
	})
	if err != nil {
		return err
	}

	for _, rec := range fresh {
		s.persisted[rec.URL] = struct{}{}
	}
	return nil
}

func (s *ThreadStore) insert(ctx context.Context, rec *domain.ThreadRecord) error {
	query := `
		INSERT INTO threads (url, title)
		VALUES ($1, $2)
		ON CONFLICT (url) DO NOTHING
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, rec.URL.String(), rec.Title).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// Stored by an earlier run; the existing record wins.
		return nil
	}
	if err != nil {
		return err
	}

	return s.messages.InsertBatch(ctx, id, rec.Messages)
}
