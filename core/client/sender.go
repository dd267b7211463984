package client

import (
	"context"
	"fmt"
	"net/rpc"
	"sync"

	"github.com/pyropy/chunkup/core/chunkserver"
	rpcChunkServer "github.com/pyropy/chunkup/rpc/chunkserver"
)

// Submission is one chunk transfer. Final fields are only set on the last
// chunk of a session.
type Submission struct {
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

	// OnProgress, when set, is called by senders that can report how much
	// of Data has been transferred, as a fraction in [0, 1].
	OnProgress func(float64)
}

// Reply is what the receiver answered to a submission.
type Reply struct {
	Status       int
	Committed    bool
	Pending      bool
	ArtifactPath string
}

// OK reports whether the status is a success status.
func (r Reply) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Sender moves a submission to the receiver. A submission succeeds iff the
// returned Reply is OK and err is nil.
type Sender interface {
	Send(ctx context.Context, sub Submission) (Reply, error)
}

// Reserver is implemented by senders that can claim a session id on the
// receiver before the first chunk is sent.
type Reserver interface {
	Reserve(ctx context.Context, sessionID string) error
}

// RPCSender submits chunks to a chunk server over net/rpc.
type RPCSender struct {
	addr string

	mu     sync.Mutex
	client *rpc.Client
}

func NewRPCSender(addr string) *RPCSender {
	return &RPCSender{addr: addr}
}

func (s *RPCSender) conn() (*rpc.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	c, err := rpc.DialHTTP("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, s.addr, err)
	}

	s.client = c
	return c, nil
}

// reset drops a broken connection so the next attempt dials again.
func (s *RPCSender) reset(c *rpc.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == c {
		s.client.Close()
		s.client = nil
	}
}

func (s *RPCSender) Send(ctx context.Context, sub Submission) (Reply, error) {
	c, err := s.conn()
	if err != nil {
		return Reply{}, err
	}

	args := &rpcChunkServer.SubmitChunkArgs{
		SessionID:       sub.SessionID,
		Offset:          sub.Offset,
		Size:            sub.Size,
		ChunkHash:       sub.ChunkHash,
		Data:            sub.Data,
		Final:           sub.Final,
		TotalSize:       sub.TotalSize,
		WholeStreamHash: sub.WholeStreamHash,
		Filename:        sub.Filename,
		Params:          sub.Params,
	}

	var reply rpcChunkServer.SubmitChunkReply
	call := c.Go(rpcChunkServer.SubmitChunk, args, &reply, make(chan *rpc.Call, 1))

	// a net/rpc call travels as a single message, so there is no partial
	// progress between dispatch and reply
	if sub.OnProgress != nil {
		sub.OnProgress(0)
	}

	select {
	case <-call.Done:
	case <-ctx.Done():
		// net/rpc calls can not be aborted, drop the connection instead
		s.reset(c)
		return Reply{}, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	}

	if call.Error != nil {
		if _, ok := call.Error.(rpc.ServerError); !ok {
			s.reset(c)
		}

		return Reply{}, classify(call.Error)
	}

	if sub.OnProgress != nil {
		sub.OnProgress(1)
	}

	return Reply{
		Status:       reply.Status,
		Committed:    reply.Committed,
		Pending:      reply.Pending,
		ArtifactPath: reply.ArtifactPath,
	}, nil
}

func (s *RPCSender) Reserve(ctx context.Context, sessionID string) error {
	c, err := s.conn()
	if err != nil {
		return err
	}

	args := &rpcChunkServer.OpenSessionArgs{SessionID: sessionID}
	var reply rpcChunkServer.OpenSessionReply
	call := c.Go(rpcChunkServer.OpenSession, args, &reply, make(chan *rpc.Call, 1))

	select {
	case <-call.Done:
	case <-ctx.Done():
		s.reset(c)
		return fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	}

	if call.Error != nil {
		if _, ok := call.Error.(rpc.ServerError); !ok {
			s.reset(c)
		}

		return classify(call.Error)
	}

	return nil
}

func (s *RPCSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}

	err := s.client.Close()
	s.client = nil

	return err
}

// LocalSender hands submissions straight to an in-process chunk server.
type LocalSender struct {
	Server *chunkserver.ChunkServer
}

func (s *LocalSender) Reserve(ctx context.Context, sessionID string) error {
	return s.Server.Reserve(ctx, sessionID)
}

func (s *LocalSender) Send(ctx context.Context, sub Submission) (Reply, error) {
	res, err := s.Server.Submit(ctx, chunkserver.SubmitRequest{
		SessionID:       sub.SessionID,
		Offset:          sub.Offset,
		Size:            sub.Size,
		ChunkHash:       sub.ChunkHash,
		Data:            sub.Data,
		Final:           sub.Final,
		TotalSize:       sub.TotalSize,
		WholeStreamHash: sub.WholeStreamHash,
		Filename:        sub.Filename,
		Params:          sub.Params,
	})
	if err != nil {
		return Reply{}, err
	}

	if sub.OnProgress != nil {
		sub.OnProgress(1)
	}

	status := rpcChunkServer.StatusOK
	if res.Pending {
		status = rpcChunkServer.StatusAccepted
	}

	return Reply{
		Status:       status,
		Committed:    res.Committed,
		Pending:      res.Pending,
		ArtifactPath: res.ArtifactPath,
	}, nil
}
