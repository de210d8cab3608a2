package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thread_harvester/internal/domain"
)

type recordingPublisher struct {
	published []domain.ThreadURL
	closed    int
}

func (r *recordingPublisher) Publish(_ context.Context, thread *domain.ThreadRecord) error {
	r.published = append(r.published, thread.URL)
	return nil
}

func (r *recordingPublisher) Close() error {
	r.closed++
	return nil
}

func TestLazy_CloseWithoutPublishNeverConnects(t *testing.T) {
	opens := 0
	l := newLazy(func() (threadPublisher, error) {
		opens++
		return &recordingPublisher{}, nil
	})

	assert.NoError(t, l.Close())
	assert.Zero(t, opens)
}

func TestLazy_ConnectsOnceOnFirstPublish(t *testing.T) {
	ctx := context.Background()
	rec := &recordingPublisher{}
	opens := 0
	l := newLazy(func() (threadPublisher, error) {
		opens++
		return rec, nil
	})

	require.NoError(t, l.Publish(ctx, &domain.ThreadRecord{URL: "https://forum.test/t/1"}))
	require.NoError(t, l.Publish(ctx, &domain.ThreadRecord{URL: "https://forum.test/t/2"}))
	require.NoError(t, l.Close())

	assert.Equal(t, 1, opens)
	assert.Equal(t, []domain.ThreadURL{"https://forum.test/t/1", "https://forum.test/t/2"}, rec.published)
	assert.Equal(t, 1, rec.closed)
}

func TestLazy_RetriesFailedConnection(t *testing.T) {
	ctx := context.Background()
	dialErr := errors.New("connection refused")
	rec := &recordingPublisher{}
	opens := 0
	l := newLazy(func() (threadPublisher, error) {
		opens++
		if opens == 1 {
			return nil, dialErr
		}
		return rec, nil
	})

	err := l.Publish(ctx, &domain.ThreadRecord{URL: "https://forum.test/t/1"})
	assert.ErrorIs(t, err, dialErr)

	require.NoError(t, l.Publish(ctx, &domain.ThreadRecord{URL: "https://forum.test/t/2"}))
	assert.Equal(t, 2, opens)
	assert.Equal(t, []domain.ThreadURL{"https://forum.test/t/2"}, rec.published)
}
