package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thread_harvester/internal/domain"
)

func TestEncodeThread(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	thread := &domain.ThreadRecord{
		URL:   "https://forum.test/g/demo/topic/1",
		Title: "Gateway down",
		Messages: []domain.Message{
			{Author: "alice", Timestamp: "2024-05-01T09:00:00Z", Body: "it is down"},
		},
	}

	body, err := encodeThread(thread, now)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"action": "extracted",
		"thread": {
			"url": "https://forum.test/g/demo/topic/1",
			"title": "Gateway down",
			"messages": [{"author": "alice", "timestamp": "2024-05-01T09:00:00Z", "body": "it is down"}]
		},
		"timestamp": "2024-05-01T10:00:00Z"
	}`, string(body))
}

func TestEncodeThread_NoMessages(t *testing.T) {
	body, err := encodeThread(&domain.ThreadRecord{URL: "https://forum.test/t/2", Title: "empty"}, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"messages":[]`)
}
