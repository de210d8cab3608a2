package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"thread_harvester/internal/domain"
)

type threadPublisher interface {
	Publish(ctx context.Context, thread *domain.ThreadRecord) error
	Close() error
}

// Lazy connects to the broker on the first Publish, so a run that stops
// before extracting anything declares nothing on the broker. A failed
// connection is retried by the next Publish.
type Lazy struct {
	mu   sync.Mutex
	open func() (threadPublisher, error)
	pub  threadPublisher
}

func NewLazy(cfg Config, logger *slog.Logger) *Lazy {
	return newLazy(func() (threadPublisher, error) {
		r, err := NewRabbitMQ(cfg, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
}

func newLazy(open func() (threadPublisher, error)) *Lazy {
	return &Lazy{open: open}
}

func (l *Lazy) Publish(ctx context.Context, thread *domain.ThreadRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pub == nil {
		pub, err := l.open()
		if err != nil {
			return fmt.Errorf("open publisher: %w", err)
		}
		l.pub = pub
	}
	return l.pub.Publish(ctx, thread)
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pub == nil {
		return nil
	}
	err := l.pub.Close()
	l.pub = nil
	return err
}
