package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pyropy/chunkup/core/chunkserver"
	"github.com/pyropy/chunkup/core/model"
	"github.com/pyropy/chunkup/core/planner"
	"github.com/pyropy/chunkup/lib/checksum"
)

const (
	DefaultMaxAttempts    = 3
	DefaultRequestTimeout = 30 * time.Second
	DefaultRetryDelay     = 250 * time.Millisecond
)

// State is where a session is in its per chunk cycle.
type State int

const (
	StateIdle State = iota
	StateHashing
	StateTransferring
	StateVerified
	StateRejected
	StateAborted
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHashing:
		return "hashing"
	case StateTransferring:
		return "transferring"
	case StateVerified:
		return "verified"
	case StateRejected:
		return "rejected"
	case StateAborted:
		return "aborted"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Option func(*Session)

func WithChunkSize(size int64) Option {
	return func(s *Session) { s.chunkSize = size }
}

// WithMaxAttempts bounds the number of attempts per chunk.
func WithMaxAttempts(n int) Option {
	return func(s *Session) { s.maxAttempts = n }
}

// WithRequestTimeout bounds a single chunk transfer.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithRetryDelay sets the pause before the n-th retry to n*d.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Session) { s.retryDelay = d }
}

// WithSessionID fixes the session id instead of generating one. A fixed id
// is never replaced when the receiver reports it as taken.
func WithSessionID(id string) Option {
	return func(s *Session) {
		s.state.SessionID = id
		s.fixedID = true
	}
}

// WithFilename names the artifact on the receiving side.
func WithFilename(name string) Option {
	return func(s *Session) { s.filename = name }
}

// WithParams attaches opaque key/value pairs to every submission.
func WithParams(params map[string]string) Option {
	return func(s *Session) { s.params = params }
}

// WithProgress registers a callback receiving the overall progress in [0, 1].
func WithProgress(fn func(float64)) Option {
	return func(s *Session) { s.onProgress = fn }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Session) { s.log = l }
}

// Result describes a finished upload.
type Result struct {
	// UploadID is the history record id, set when uploading through Client.
	UploadID uuid.UUID

	SessionID    string
	TotalSize    int64
	Chunks       int
	Hash         string
	ArtifactPath string
}

// Session uploads one source chunk by chunk. Chunks are sent strictly one
// after another; every chunk gets a bounded number of attempts and the last
// one carries the digest of the whole stream.
type Session struct {
	src    ByteSource
	sender Sender
	plan   *planner.Plan
	whole  *checksum.Hasher
	log    *zap.SugaredLogger

	chunkSize   int64
	maxAttempts int
	timeout     time.Duration
	retryDelay  time.Duration
	filename    string
	params      map[string]string
	onProgress  func(float64)

	fixedID bool

	mu      sync.Mutex
	state   model.SessionState
	current State
	started bool
}

// NewSession prepares an upload of src through sender. The sender is fixed
// for the lifetime of the session.
func NewSession(src ByteSource, sender Sender, opts ...Option) (*Session, error) {
	s := &Session{
		src:         src,
		sender:      sender,
		whole:       checksum.New(),
		log:         log,
		chunkSize:   planner.DefaultChunkSize,
		maxAttempts: DefaultMaxAttempts,
		timeout:     DefaultRequestTimeout,
		retryDelay:  DefaultRetryDelay,
	}

	for _, opt := range opts {
		opt(s)
	}

	if src.Size() == 0 {
		return nil, ErrEmptySource
	}

	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}

	plan, err := planner.New(src.Size(), s.chunkSize)
	if err != nil {
		return nil, err
	}
	s.plan = plan

	if s.state.SessionID == "" {
		id, err := model.NewSessionID()
		if err != nil {
			return nil, err
		}
		s.state.SessionID = id
	}

	if !model.ValidSessionID(s.state.SessionID) {
		return nil, fmt.Errorf("invalid session id %q", s.state.SessionID)
	}

	s.state.TotalSize = src.Size()
	s.state.ChunkSize = s.chunkSize
	s.state.RetriesRemaining = s.maxAttempts

	return s, nil
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.SessionID
}

// State returns the current cycle state and a copy of the session state.
func (s *Session) State() (State, model.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current, s.state
}

// Chunks returns the number of chunks the source is split into.
func (s *Session) Chunks() int {
	return s.plan.Len()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.current = st
	s.mu.Unlock()
}

func (s *Session) progress(inflight float64, chunk model.ChunkDescriptor) {
	if s.onProgress == nil {
		return
	}

	s.mu.Lock()
	p := s.state.Progress(inflight, chunk.Length)
	s.mu.Unlock()

	s.onProgress(p)
}

// Run uploads every chunk and returns once the receiver committed the
// artifact, a chunk ran out of attempts, a fatal error was reported or ctx
// was canceled. Cancellation is observed between chunks and attempts.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, ErrSessionRunning
	}
	s.started = true
	s.mu.Unlock()

	worker := newHashWorker(s.src)
	worker.start(ctx)
	defer worker.stop()

	if err := s.reserve(ctx); err != nil {
		return nil, s.abort(err)
	}

	s.log.Infow("upload", "status", "starting", "session", s.ID(), "size", s.state.TotalSize, "chunks", s.plan.Len(), "chunkSize", s.chunkSize)

	var last Reply
	for chunk, ok := s.plan.Next(); ok; chunk, ok = s.plan.Next() {
		if err := ctx.Err(); err != nil {
			return nil, s.abort(fmt.Errorf("%w: %v", ErrCanceled, err))
		}

		s.setState(StateHashing)
		res, err := worker.hash(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, s.abort(fmt.Errorf("%w: %v", ErrCanceled, ctx.Err()))
			}
			return nil, s.abort(err)
		}

		if err := s.whole.Feed(res.data); err != nil {
			return nil, s.abort(err)
		}

		sub := Submission{
			SessionID: s.ID(),
			Offset:    chunk.Offset,
			Size:      chunk.Length,
			ChunkHash: res.hash,
			Data:      res.data,
			Params:    s.params,
			OnProgress: func(f float64) {
				s.progress(f, chunk)
			},
		}

		if chunk.IsFinal {
			sub.Final = true
			sub.TotalSize = s.state.TotalSize
			sub.WholeStreamHash = s.whole.FinalizeHex()
			sub.Filename = s.filename
		}

		last, err = s.transfer(ctx, chunk, sub)
		if err != nil {
			return nil, s.abort(err)
		}

		s.mu.Lock()
		s.state.NextOffset = chunk.End()
		s.state.RetriesRemaining = s.maxAttempts
		s.mu.Unlock()
		s.progress(0, chunk)

		s.log.Debugw("upload", "status", "chunk accepted", "session", s.ID(), "offset", chunk.Offset, "size", chunk.Length)
	}

	if last.Pending {
		return nil, s.abort(fmt.Errorf("%w: session %s is still missing chunks", ErrNotCommitted, s.ID()))
	}

	s.setState(StateCompleted)
	if s.onProgress != nil {
		s.onProgress(1)
	}

	hash := s.whole.FinalizeHex()
	s.log.Infow("upload", "status", "completed", "session", s.ID(), "size", s.state.TotalSize, "hash", hash)

	return &Result{
		SessionID:    s.ID(),
		TotalSize:    s.state.TotalSize,
		Chunks:       s.plan.Len(),
		Hash:         hash,
		ArtifactPath: last.ArtifactPath,
	}, nil
}

// transfer sends one chunk, retrying retryable failures until the attempt
// budget of the chunk is spent. The chunk bytes and digest computed before
// the first attempt are reused by every retry.
func (s *Session) transfer(ctx context.Context, chunk model.ChunkDescriptor, sub Submission) (Reply, error) {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.wait(ctx, time.Duration(attempt-1)*s.retryDelay); err != nil {
				return Reply{}, err
			}
		}

		s.mu.Lock()
		s.state.RetriesRemaining = s.maxAttempts - attempt
		s.current = StateTransferring
		s.mu.Unlock()

		reply, err := s.send(ctx, sub)
		if err == nil && reply.OK() {
			s.setState(StateVerified)
			return reply, nil
		}

		if err == nil {
			err = fmt.Errorf("%w: status %d", ErrTransport, reply.Status)
		}

		if ctx.Err() != nil {
			return Reply{}, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		}

		if !Retryable(err) {
			return Reply{}, err
		}

		s.setState(StateRejected)
		s.log.Warnw("upload", "status", "chunk attempt failed", "session", s.ID(), "offset", chunk.Offset, "attempt", attempt, "error", err)
		lastErr = err
	}

	return Reply{}, fmt.Errorf("%w: offset %d after %d attempts: %w", ErrRetriesExhausted, chunk.Offset, s.maxAttempts, lastErr)
}

// reserve claims the session id when the sender supports it. A generated
// id that collides with another session is replaced by a fresh one.
func (s *Session) reserve(ctx context.Context) error {
	r, ok := s.sender.(Reserver)
	if !ok {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.wait(ctx, time.Duration(attempt-1)*s.retryDelay); err != nil {
				return err
			}
		}

		rctx, cancel := context.WithTimeout(ctx, s.requestTimeout())
		err := r.Reserve(rctx, s.ID())
		cancel()
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		}

		if errors.Is(err, chunkserver.ErrSessionConflict) && !s.fixedID {
			id, idErr := model.NewSessionID()
			if idErr != nil {
				return idErr
			}

			s.log.Warnw("upload", "status", "session id taken, picking another", "session", s.ID(), "next", id)
			s.mu.Lock()
			s.state.SessionID = id
			s.mu.Unlock()
		} else if !Retryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("%w: reserving session after %d attempts: %w", ErrRetriesExhausted, s.maxAttempts, lastErr)
}

func (s *Session) requestTimeout() time.Duration {
	if s.timeout <= 0 {
		return DefaultRequestTimeout
	}

	return s.timeout
}

func (s *Session) send(ctx context.Context, sub Submission) (Reply, error) {
	if s.timeout <= 0 {
		return s.sender.Send(ctx, sub)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.sender.Send(ctx, sub)
}

func (s *Session) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
	}
}

func (s *Session) abort(err error) error {
	s.setState(StateAborted)
	s.log.Errorw("upload", "status", "aborted", "session", s.ID(), "error", err)

	if errors.Is(err, ErrCanceled) {
		return err
	}

	return fmt.Errorf("session %s: %w", s.ID(), err)
}
