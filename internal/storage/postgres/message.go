package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"thread_harvester/internal/domain"
)

// Postgres accepts at most 65535 bind parameters per statement.
const messageBatchRows = 10000

type MessageStore struct {
	db *sqlx.DB
}

func NewMessageStore(db *sqlx.DB) *MessageStore {
	return &MessageStore{db: db}
}

// InsertBatch stores the messages of one thread in page order.
func (s *MessageStore) InsertBatch(ctx context.Context, threadID int64, messages []domain.Message) error {
	for start := 0; start < len(messages); start += messageBatchRows {
		end := min(start+messageBatchRows, len(messages))
		if err := s.insert(ctx, threadID, start, messages[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MessageStore) insert(ctx context.Context, threadID int64, offset int, messages []domain.Message) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO messages (thread_id, position, author, posted_at, body) VALUES ")
	valueArgs := make([]any, 0, len(messages)*4+1)
	valueArgs = append(valueArgs, threadID)

	for i, m := range messages {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i*4 + 2
		sb.WriteString("($1, $")
		sb.WriteString(strconv.Itoa(n))
		sb.WriteString(", $")
		sb.WriteString(strconv.Itoa(n + 1))
		sb.WriteString(", $")
		sb.WriteString(strconv.Itoa(n + 2))
		sb.WriteString(", $")
		sb.WriteString(strconv.Itoa(n + 3))
		sb.WriteString(")")
		valueArgs = append(valueArgs, offset+i, m.Author, m.Timestamp, m.Body)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), valueArgs...)
	return err
}

type messageRow struct {
	ThreadID int64  `db:"thread_id"`
	Position int    `db:"position"`
	Author   string `db:"author"`
	PostedAt string `db:"posted_at"`
	Body     string `db:"body"`
}

// ListAll returns every stored message keyed by thread id, in page order.
func (s *MessageStore) ListAll(ctx context.Context) (map[int64][]domain.Message, error) {
	query := `
		SELECT thread_id, position, author, posted_at, body
		FROM messages
		ORDER BY thread_id, position`

	var rows []messageRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, err
	}

	out := make(map[int64][]domain.Message)
	for _, r := range rows {
		out[r.ThreadID] = append(out[r.ThreadID], domain.Message{
			Author:    r.Author,
			Timestamp: r.PostedAt,
			Body:      r.Body,
		})
	}
	return out, nil
}
