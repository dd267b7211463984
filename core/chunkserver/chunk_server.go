package chunkserver

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pyropy/chunkup/core/model"
	"github.com/pyropy/chunkup/lib/cache"
	"github.com/pyropy/chunkup/lib/checksum"
	concurrentMap "github.com/pyropy/chunkup/lib/concurrent_map"
	"github.com/pyropy/chunkup/lib/logger"
)

var log, _ = logger.New("chunkserver")

// SubmitRequest is one chunk as handed to the chunk server.
type SubmitRequest struct {
	SessionID string
	Offset    int64
	Size      int64
	ChunkHash string
	Data      []byte

	Final           bool
	TotalSize       int64
	WholeStreamHash string
	Filename        string

	Params map[string]string
}

// SubmitResult tells the sender what happened to an accepted chunk.
type SubmitResult struct {
	// Committed is set once all chunks were reassembled and the artifact
	// matched the whole stream hash.
	Committed bool
	// Pending is set when the final chunk arrived before some of its
	// predecessors; reassembly happens when the last gap is filled.
	Pending      bool
	ArtifactPath string
	Hash         string
}

// ChunkServer verifies incoming chunks, persists them per session and
// reassembles the artifact once every chunk is present.
type ChunkServer struct {
	Cfg   *Config
	Store *ChunkStore

	locks     *concurrentMap.Map[string, *sync.Mutex]
	committed *cache.LRU[string, SubmitResult]
}

func NewChunkServer(cfg *Config) *ChunkServer {
	size := cfg.Chunks.CacheSize
	if size <= 0 {
		size = 1
	}

	return &ChunkServer{
		Cfg:       cfg,
		Store:     NewChunkStore(cfg.Chunks.Path),
		locks:     concurrentMap.NewMap[string, *sync.Mutex](),
		committed: cache.NewLRU[string, SubmitResult](size),
	}
}

func (c *ChunkServer) lock(sessionID string) func() {
	mu, _ := c.locks.GetOrSet(sessionID, &sync.Mutex{})
	mu.Lock()

	return mu.Unlock
}

// Stats reports how many uncommitted sessions the server tracks and how
// many committed sessions are cached.
func (c *ChunkServer) Stats() (active, committed int) {
	return c.locks.Len(), c.committed.Len()
}

// Reserve claims a session id before its first chunk is sent. Two uploads
// that picked the same id can not both reserve it. Submitting chunks does
// not require a reservation.
func (c *ChunkServer) Reserve(ctx context.Context, sessionID string) error {
	if !model.ValidSessionID(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := c.lock(sessionID)
	defer unlock()

	_, committed, err := c.committedResult(sessionID)
	if err != nil {
		return err
	}

	if committed {
		return fmt.Errorf("%w: %s", ErrSessionConflict, sessionID)
	}

	if err := c.Store.CreateContainer(sessionID); err != nil {
		return err
	}

	log.Infow("reserve", "status", "session reserved", "session", sessionID)
	return nil
}

func validate(req SubmitRequest) error {
	if !model.ValidSessionID(req.SessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, req.SessionID)
	}

	if req.Offset < 0 || req.Size <= 0 || req.Offset > MaxStreamSize-req.Size {
		return fmt.Errorf("%w: offset %d size %d", ErrInvalidChunk, req.Offset, req.Size)
	}

	if int64(len(req.Data)) != req.Size {
		return fmt.Errorf("%w: declared size %d but got %d bytes", ErrInvalidChunk, req.Size, len(req.Data))
	}

	if req.Final {
		if req.TotalSize != req.Offset+req.Size {
			return fmt.Errorf("%w: final chunk ends at %d but total size is %d", ErrInvalidChunk, req.Offset+req.Size, req.TotalSize)
		}

		if len(req.WholeStreamHash) != checksum.HexSize {
			return fmt.Errorf("%w: malformed whole stream hash", ErrInvalidChunk)
		}

		if _, err := artifactName(req.Filename); err != nil {
			return err
		}
	}

	return nil
}

// Submit verifies req against its claimed hash and stores it. Mismatching
// chunks are rejected with ErrChunkHashMismatch and never written.
func (c *ChunkServer) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if err := validate(req); err != nil {
		return SubmitResult{}, err
	}

	if res, ok := c.committed.Get(req.SessionID); ok {
		return resubmitted(req, res)
	}

	calculated := checksum.SumHex(req.Data)
	if !checksum.Equal(calculated, req.ChunkHash) {
		log.Warnw("submit", "status", "chunk hash mismatch", "session", req.SessionID, "offset", req.Offset, "claimed", req.ChunkHash, "calculated", calculated)
		return SubmitResult{}, fmt.Errorf("%w: offset %d claimed %s calculated %s", ErrChunkHashMismatch, req.Offset, req.ChunkHash, calculated)
	}

	if err := ctx.Err(); err != nil {
		return SubmitResult{}, err
	}

	unlock := c.lock(req.SessionID)
	defer unlock()

	// another submission may have committed the session while we waited, or
	// it was committed long enough ago to have left the cache
	res, committed, err := c.committedResult(req.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}

	if committed {
		return resubmitted(req, res)
	}

	if err := c.Store.EnsureContainer(req.SessionID); err != nil {
		return SubmitResult{}, err
	}

	if err := c.Store.Put(req.SessionID, req.Offset, req.Data); err != nil {
		return SubmitResult{}, err
	}

	log.Debugw("submit", "status", "chunk stored", "session", req.SessionID, "offset", req.Offset, "size", req.Size)

	manifest, err := c.finalManifest(req)
	if err != nil {
		return SubmitResult{}, err
	}

	if manifest == nil {
		return SubmitResult{}, nil
	}

	chunks, err := c.Store.List(req.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}

	complete, err := covers(chunks, manifest.TotalSize)
	if err != nil {
		return SubmitResult{}, err
	}

	if !complete {
		if req.Final {
			if err := c.Store.WriteManifest(req.SessionID, *manifest); err != nil {
				return SubmitResult{}, err
			}
		}

		log.Infow("submit", "status", "final chunk waiting for missing chunks", "session", req.SessionID, "chunks", len(chunks))
		return SubmitResult{Pending: true}, nil
	}

	res, err = c.reassemble(ctx, req.SessionID, chunks, *manifest)
	if err != nil {
		return SubmitResult{}, err
	}

	c.committed.Put(req.SessionID, res)
	c.locks.Delete(req.SessionID)

	return res, nil
}

// resubmitted answers a submission for an already committed session. Only
// a repeat of the final chunk is accepted, so a lost reply can be retried.
func resubmitted(req SubmitRequest, res SubmitResult) (SubmitResult, error) {
	if req.Final && checksum.Equal(req.WholeStreamHash, res.Hash) {
		return res, nil
	}

	return SubmitResult{}, fmt.Errorf("%w: %s", ErrSessionCommitted, req.SessionID)
}

// committedResult looks the session up in the cache of committed sessions
// and falls back to its commit record on disk. Callers hold the session lock.
func (c *ChunkServer) committedResult(sessionID string) (SubmitResult, bool, error) {
	if res, ok := c.committed.Get(sessionID); ok {
		return res, true, nil
	}

	rec, err := c.Store.ReadCommit(sessionID)
	if err != nil || rec == nil {
		return SubmitResult{}, false, err
	}

	artifact, err := c.Store.ArtifactPath(sessionID, rec.Filename)
	if err != nil {
		return SubmitResult{}, false, err
	}

	res := SubmitResult{
		Committed:    true,
		ArtifactPath: artifact,
		Hash:         rec.Hash,
	}
	c.committed.Put(sessionID, res)

	return res, true, nil
}

// finalManifest returns the whole stream claims for the session, taken from
// the request itself when it is final or from an earlier stored manifest.
func (c *ChunkServer) finalManifest(req SubmitRequest) (*Manifest, error) {
	stored, err := c.Store.ReadManifest(req.SessionID)
	if err != nil {
		return nil, err
	}

	if !req.Final {
		return stored, nil
	}

	m := &Manifest{
		TotalSize:       req.TotalSize,
		WholeStreamHash: req.WholeStreamHash,
		Filename:        req.Filename,
	}

	if stored != nil && (stored.TotalSize != m.TotalSize || !checksum.Equal(stored.WholeStreamHash, m.WholeStreamHash)) {
		return nil, fmt.Errorf("%w: final chunk disagrees with stored manifest", ErrSessionConflict)
	}

	return m, nil
}

// covers reports whether chunks, sorted by key, tile [0, totalSize)
// without gaps.
func covers(chunks []StoredChunk, totalSize int64) (bool, error) {
	var next int64
	for _, ch := range chunks {
		if ch.Offset > next {
			return false, nil
		}

		if ch.Offset < next || ch.End() > totalSize {
			return false, fmt.Errorf("%w: chunk at offset %d overlaps or exceeds total size %d", ErrSessionConflict, ch.Offset, totalSize)
		}

		next = ch.End()
	}

	return next == totalSize, nil
}

// reassemble concatenates chunks into the artifact, verifies it against the
// whole stream hash and drops the fragments. On mismatch the session
// container is discarded.
func (c *ChunkServer) reassemble(ctx context.Context, sessionID string, chunks []StoredChunk, m Manifest) (SubmitResult, error) {
	artifact, err := c.Store.ArtifactPath(sessionID, m.Filename)
	if err != nil {
		return SubmitResult{}, err
	}

	if len(chunks) == 1 {
		if err := os.Rename(chunks[0].Path, artifact); err != nil {
			return SubmitResult{}, storageErr("rename artifact", artifact, err)
		}
	} else if err := c.concat(ctx, chunks, artifact); err != nil {
		return SubmitResult{}, err
	}

	calculated, size, err := hashFile(artifact)
	if err != nil {
		return SubmitResult{}, err
	}

	if size != m.TotalSize || !checksum.Equal(calculated, m.WholeStreamHash) {
		log.Errorw("reassemble", "status", "whole stream hash mismatch", "session", sessionID, "claimed", m.WholeStreamHash, "calculated", calculated, "size", size)
		if err := c.Store.RemoveContainer(sessionID); err != nil {
			log.Errorw("reassemble", "status", "failed to discard session", "session", sessionID, "error", err)
		}

		return SubmitResult{}, fmt.Errorf("%w: session %s claimed %s calculated %s", ErrWholeStreamHashMismatch, sessionID, m.WholeStreamHash, calculated)
	}

	err = c.Store.WriteCommit(sessionID, CommitRecord{
		TotalSize:   size,
		Hash:        calculated,
		Filename:    m.Filename,
		CommittedAt: time.Now().UTC(),
	})
	if err != nil {
		return SubmitResult{}, err
	}

	for _, ch := range chunks {
		if err := c.Store.Remove(ch); err != nil {
			return SubmitResult{}, err
		}
	}

	if err := c.Store.RemoveManifest(sessionID); err != nil {
		return SubmitResult{}, err
	}

	log.Infow("reassemble", "status", "artifact committed", "session", sessionID, "chunks", len(chunks), "size", size, "path", artifact)

	return SubmitResult{
		Committed:    true,
		ArtifactPath: artifact,
		Hash:         calculated,
	}, nil
}

func (c *ChunkServer) concat(ctx context.Context, chunks []StoredChunk, artifact string) error {
	tmp := artifact + partialSuffix

	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return storageErr("create artifact", tmp, err)
	}

	fail := func(op, path string, err error) error {
		out.Close()
		_ = os.Remove(tmp)
		return storageErr(op, path, err)
	}

	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			out.Close()
			_ = os.Remove(tmp)
			return err
		}

		in, err := c.Store.Open(ch)
		if err != nil {
			out.Close()
			_ = os.Remove(tmp)
			return err
		}

		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return fail("append chunk", ch.Path, err)
		}
	}

	if err := out.Sync(); err != nil {
		return fail("sync artifact", tmp, err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return storageErr("close artifact", tmp, err)
	}

	if err := os.Rename(tmp, artifact); err != nil {
		_ = os.Remove(tmp)
		return storageErr("rename artifact", artifact, err)
	}

	return nil
}

func hashFile(p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, storageErr("open artifact", p, err)
	}
	defer f.Close()

	sum, n, err := checksum.SumReader(f)
	if err != nil {
		return "", n, storageErr("read artifact", p, err)
	}

	return sum, n, nil
}
