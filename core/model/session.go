package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the client side view of an upload in progress.
type SessionState struct {
	SessionID        string
	TotalSize        int64
	NextOffset       int64
	ChunkSize        int64
	RetriesRemaining int
}

// Progress returns the fraction of the source that has been accepted,
// plus inflight, the fraction of the current chunk already transferred.
func (s SessionState) Progress(inflight float64, chunkLength int64) float64 {
	if s.TotalSize <= 0 {
		return 0
	}

	p := (float64(s.NextOffset) + inflight*float64(chunkLength)) / float64(s.TotalSize)
	if p > 1 {
		return 1
	}

	return p
}

type UploadStatus string

const (
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusFailed    UploadStatus = "failed"
	UploadStatusCanceled  UploadStatus = "canceled"
)

// UploadRecord is what the client keeps about a finished upload.
type UploadRecord struct {
	ID        uuid.UUID
	SessionID string
	Source    string
	Filename  string
	TotalSize int64
	Chunks    int
	Hash      string
	Status    UploadStatus
	Error     string `json:",omitempty"`
	CreatedAt time.Time
}

func NewUploadRecord(sessionID, source string) UploadRecord {
	return UploadRecord{
		ID:        uuid.New(),
		SessionID: sessionID,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}
