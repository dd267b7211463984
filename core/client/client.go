package client

import (
	"context"
	"errors"

	"github.com/pyropy/chunkup/core/model"
	"github.com/pyropy/chunkup/lib/logger"
)

var log, _ = logger.New("client")

type Client struct {
	*UploadHistory

	Sender Sender
}

// NewClient returns a client submitting chunks to the chunk server at addr
// and keeping its upload history under dsPath.
func NewClient(addr string, dsPath string) (*Client, error) {
	history, err := NewUploadHistory(dsPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		UploadHistory: history,
		Sender:        NewRPCSender(addr),
	}, nil
}

// UploadFile uploads the file at path and records the outcome in the
// upload history, failed attempts included.
func (c *Client) UploadFile(ctx context.Context, path string, opts ...Option) (*Result, error) {
	src, err := OpenFileSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return c.Upload(ctx, path, src, opts...)
}

// Upload uploads src; name only labels the history record.
func (c *Client) Upload(ctx context.Context, name string, src ByteSource, opts ...Option) (*Result, error) {
	session, err := NewSession(src, c.Sender, opts...)
	if err != nil {
		return nil, err
	}

	record := model.NewUploadRecord(session.ID(), name)
	record.TotalSize = src.Size()
	record.Chunks = session.Chunks()
	record.Filename = session.filename

	res, runErr := session.Run(ctx)
	// the receiver may have made the session pick another id
	record.SessionID = session.ID()
	switch {
	case runErr == nil:
		record.Status = model.UploadStatusCompleted
		record.Hash = res.Hash
		res.UploadID = record.ID
	case errors.Is(runErr, ErrCanceled):
		record.Status = model.UploadStatusCanceled
		record.Error = runErr.Error()
	default:
		record.Status = model.UploadStatusFailed
		record.Error = runErr.Error()
	}

	// the history write must not be lost to a canceled upload context
	if err := c.UploadHistory.Put(context.Background(), record); err != nil {
		log.Errorw("upload", "status", "failed to record upload", "upload", record.ID, "session", record.SessionID, "error", err)
		if runErr == nil {
			return res, err
		}
	}

	return res, runErr
}

func (c *Client) Close() error {
	var err error
	if closer, ok := c.Sender.(interface{ Close() error }); ok {
		err = closer.Close()
	}

	return errors.Join(err, c.UploadHistory.Close())
}
