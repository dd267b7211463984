package chunkserver

import (
	"errors"
	"fmt"
)

var (
	ErrChunkHashMismatch       = errors.New("chunk hash mismatch")
	ErrWholeStreamHashMismatch = errors.New("whole stream hash mismatch")
	ErrStorage                 = errors.New("chunk storage failure")
	ErrInvalidSessionID        = errors.New("invalid session id")
	ErrInvalidChunk            = errors.New("invalid chunk")
	ErrSessionConflict         = errors.New("session conflict")
	ErrSessionCommitted        = errors.New("session already committed")
)

// StorageError describes a failed operation on the chunk store.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrStorage, e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageErr(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}
