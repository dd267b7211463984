package client

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyropy/chunkup/core/model"
)

func TestUploadHistory(t *testing.T) {
	h, err := NewUploadHistory(t.TempDir())
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()

	_, err = h.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUploadNotFound)

	_, err = h.BySession(ctx, "missing")
	assert.ErrorIs(t, err, ErrUploadNotFound)

	first := model.NewUploadRecord("sessOne", "/tmp/a")
	first.Status = model.UploadStatusCompleted
	first.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, h.Put(ctx, first))

	second := model.NewUploadRecord("sessTwo", "/tmp/b")
	second.Status = model.UploadStatusFailed
	second.Error = "boom"
	require.NoError(t, h.Put(ctx, second))

	got, err := h.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "sessTwo", got.SessionID)
	assert.Equal(t, "boom", got.Error)

	// a retry under the same session id is a separate record
	retry := model.NewUploadRecord("sessTwo", "/tmp/b")
	retry.Status = model.UploadStatusCompleted
	retry.CreatedAt = second.CreatedAt.Add(time.Second)
	require.NoError(t, h.Put(ctx, retry))

	attempts, err := h.BySession(ctx, "sessTwo")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, second.ID, attempts[0].ID)
	assert.Equal(t, retry.ID, attempts[1].ID)

	all, err := h.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "sessOne", all[0].SessionID)
	assert.Equal(t, first.ID, all[0].ID)
}

func TestClientUploadRecordsHistory(t *testing.T) {
	history, err := NewUploadHistory(t.TempDir())
	require.NoError(t, err)

	c := &Client{UploadHistory: history, Sender: newLocalSender(t)}
	defer c.Close()

	ctx := context.Background()

	res, err := c.Upload(ctx, "random", randomSource(5_000, 30), WithChunkSize(2_000), WithRetryDelay(0))
	require.NoError(t, err)

	require.NotEqual(t, uuid.Nil, res.UploadID)

	record, err := c.UploadHistory.Get(ctx, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, record.SessionID)
	assert.Equal(t, model.UploadStatusCompleted, record.Status)
	assert.Equal(t, res.Hash, record.Hash)
	assert.Equal(t, 3, record.Chunks)
	assert.Equal(t, int64(5_000), record.TotalSize)

	c.Sender = blockingSender{}
	_, err = c.Upload(ctx, "blocked", randomSource(10, 31),
		WithSessionID("blockedSession"),
		WithRequestTimeout(time.Millisecond),
		WithMaxAttempts(1),
	)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	attempts, err := c.UploadHistory.BySession(ctx, "blockedSession")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.UploadStatusFailed, attempts[0].Status)
	assert.NotEmpty(t, attempts[0].Error)
}
