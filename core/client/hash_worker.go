package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pyropy/chunkup/core/model"
	"github.com/pyropy/chunkup/lib/checksum"
)

type hashTask struct {
	chunk model.ChunkDescriptor
}

type hashResult struct {
	chunk model.ChunkDescriptor
	data  []byte
	hash  string
	err   error
}

// hashWorker reads and hashes chunks on its own goroutine so slow source
// I/O never runs on the goroutine driving the session. Tasks go in over
// one channel and results come back over another; the session only ever
// has one task outstanding.
type hashWorker struct {
	src     ByteSource
	tasks   chan hashTask
	results chan hashResult
	done    chan struct{}
}

func newHashWorker(src ByteSource) *hashWorker {
	return &hashWorker{
		src:     src,
		tasks:   make(chan hashTask),
		results: make(chan hashResult, 1),
		done:    make(chan struct{}),
	}
}

func (w *hashWorker) start(ctx context.Context) {
	go func() {
		defer close(w.done)

		for {
			select {
			case task, ok := <-w.tasks:
				if !ok {
					return
				}

				w.results <- w.process(task)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *hashWorker) process(task hashTask) hashResult {
	data := make([]byte, task.chunk.Length)

	n, err := w.src.ReadAt(data, task.chunk.Offset)
	if n == len(data) && errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		return hashResult{chunk: task.chunk, err: fmt.Errorf("%w: offset %d: %v", ErrSourceRead, task.chunk.Offset, err)}
	}

	h := checksum.New()
	if err := h.Feed(data); err != nil {
		return hashResult{chunk: task.chunk, err: err}
	}

	return hashResult{
		chunk: task.chunk,
		data:  data,
		hash:  h.FinalizeHex(),
	}
}

// hash submits a chunk and waits for its result.
func (w *hashWorker) hash(ctx context.Context, chunk model.ChunkDescriptor) (hashResult, error) {
	select {
	case w.tasks <- hashTask{chunk: chunk}:
	case <-ctx.Done():
		return hashResult{}, ctx.Err()
	case <-w.done:
		return hashResult{}, ErrCanceled
	}

	select {
	case res := <-w.results:
		return res, res.err
	case <-ctx.Done():
		return hashResult{}, ctx.Err()
	}
}

func (w *hashWorker) stop() {
	close(w.tasks)
	<-w.done
}
