package client

import (
	"context"
	"errors"
	"strings"

	"github.com/pyropy/chunkup/core/chunkserver"
)

var (
	ErrTransport        = errors.New("transport failure")
	ErrRetriesExhausted = errors.New("chunk retries exhausted")
	ErrCanceled         = errors.New("upload canceled")
	ErrEmptySource      = errors.New("source is empty")
	ErrSourceRead       = errors.New("reading source failed")
	ErrSessionRunning   = errors.New("session already started")
	ErrNotCommitted     = errors.New("receiver did not commit the artifact")
)

// fatal errors abort the session on the first occurrence.
var fatal = []error{
	chunkserver.ErrWholeStreamHashMismatch,
	chunkserver.ErrStorage,
	chunkserver.ErrInvalidChunk,
	chunkserver.ErrInvalidSessionID,
	chunkserver.ErrSessionConflict,
	chunkserver.ErrSessionCommitted,
}

// retryable receiver errors, everything unknown is treated as transport.
var retryable = []error{
	chunkserver.ErrChunkHashMismatch,
}

// Retryable reports whether a failed chunk attempt may be repeated.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCanceled) {
		return false
	}

	for _, e := range fatal {
		if errors.Is(err, e) {
			return false
		}
	}

	return true
}

// classify maps an error that crossed the wire as plain text back onto
// the receiver sentinel it was created from.
func classify(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	for _, group := range [][]error{fatal, retryable} {
		for _, e := range group {
			if strings.Contains(msg, e.Error()) {
				return &remoteError{sentinel: e, msg: msg}
			}
		}
	}

	return &remoteError{sentinel: ErrTransport, msg: msg}
}

type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Unwrap() error {
	return e.sentinel
}
