package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"thread_harvester/internal/browser"
	"thread_harvester/internal/checkpoint"
	"thread_harvester/internal/domain"
	"thread_harvester/internal/session"
)

type SessionProvider interface {
	Session(ctx context.Context) (*session.State, error)
}

type Launcher interface {
	Launch(ctx context.Context, st *session.State) (browser.Page, error)
}

type URLStore interface {
	Load(ctx context.Context) ([]domain.ThreadURL, error)
	Save(ctx context.Context, urls []domain.ThreadURL) error
}

type ThreadStore interface {
	Load(ctx context.Context) (checkpoint.State, error)
	Flush(ctx context.Context, state checkpoint.State) error
}

type Publisher interface {
	Publish(ctx context.Context, thread *domain.ThreadRecord) error
	Close() error
}
