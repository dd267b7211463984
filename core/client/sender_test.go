package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/rpc"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyropy/chunkup/core/chunkserver"
	"github.com/pyropy/chunkup/lib/checksum"
	rpcChunkServer "github.com/pyropy/chunkup/rpc/chunkserver"
)

type testAPI struct {
	server *chunkserver.ChunkServer
	delay  time.Duration
}

func (a *testAPI) OpenSession(args *rpcChunkServer.OpenSessionArgs, reply *rpcChunkServer.OpenSessionReply) error {
	if err := a.server.Reserve(context.Background(), args.SessionID); err != nil {
		return err
	}

	reply.Status = rpcChunkServer.StatusOK
	return nil
}

func (a *testAPI) SubmitChunk(args *rpcChunkServer.SubmitChunkArgs, reply *rpcChunkServer.SubmitChunkReply) error {
	time.Sleep(a.delay)

	res, err := a.server.Submit(context.Background(), chunkserver.SubmitRequest{
		SessionID:       args.SessionID,
		Offset:          args.Offset,
		Size:            args.Size,
		ChunkHash:       args.ChunkHash,
		Data:            args.Data,
		Final:           args.Final,
		TotalSize:       args.TotalSize,
		WholeStreamHash: args.WholeStreamHash,
		Filename:        args.Filename,
		Params:          args.Params,
	})
	if err != nil {
		return err
	}

	reply.Status = rpcChunkServer.StatusOK
	reply.Committed = res.Committed
	reply.Pending = res.Pending
	reply.ArtifactPath = res.ArtifactPath

	return nil
}

func startRPCServer(t *testing.T, delay time.Duration) (string, *chunkserver.ChunkServer) {
	t.Helper()

	var cfg chunkserver.Config
	cfg.Chunks.Path = t.TempDir()
	cfg.Chunks.CacheSize = 8
	cs := chunkserver.NewChunkServer(&cfg)

	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName(rpcChunkServer.ServiceName, &testAPI{server: cs, delay: delay}))

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return ts.Listener.Addr().String(), cs
}

func TestRPCSenderUpload(t *testing.T) {
	addr, _ := startRPCServer(t, 0)
	sender := NewRPCSender(addr)
	defer sender.Close()

	src := randomSource(25_000, 20)
	s, err := NewSession(src, sender, WithChunkSize(10_000), WithFilename("rpc.bin"), WithRetryDelay(0))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	got, err := os.ReadFile(res.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, sourceBytes(t, src), got)
}

func TestRPCSenderReportsProgress(t *testing.T) {
	addr, _ := startRPCServer(t, 0)
	sender := NewRPCSender(addr)
	defer sender.Close()

	data := []byte("abcdef")
	var reported []float64

	reply, err := sender.Send(context.Background(), Submission{
		SessionID:       "progress",
		Size:            int64(len(data)),
		ChunkHash:       checksum.SumHex(data),
		Data:            data,
		Final:           true,
		TotalSize:       int64(len(data)),
		WholeStreamHash: checksum.SumHex(data),
		OnProgress:      func(f float64) { reported = append(reported, f) },
	})
	require.NoError(t, err)
	assert.True(t, reply.Committed)
	assert.Equal(t, []float64{0, 1}, reported)
}

func TestRPCSenderClassifiesRemoteErrors(t *testing.T) {
	addr, _ := startRPCServer(t, 0)
	sender := NewRPCSender(addr)
	defer sender.Close()

	data := []byte("abcdef")
	_, err := sender.Send(context.Background(), Submission{
		SessionID: "sessRPC",
		Size:      int64(len(data)),
		ChunkHash: "0000000000000000000000000000000000000000",
		Data:      data,
	})
	require.ErrorIs(t, err, chunkserver.ErrChunkHashMismatch)
	assert.True(t, Retryable(err))

	_, err = sender.Send(context.Background(), Submission{
		SessionID: "../bad",
		Size:      int64(len(data)),
		Data:      data,
	})
	require.ErrorIs(t, err, chunkserver.ErrInvalidSessionID)
	assert.False(t, Retryable(err))
}

func TestRPCSenderTimeout(t *testing.T) {
	addr, _ := startRPCServer(t, 200*time.Millisecond)
	sender := NewRPCSender(addr)
	defer sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	data := []byte("abcdef")
	_, err := sender.Send(ctx, Submission{SessionID: "sessT", Size: 6, Data: data})
	require.ErrorIs(t, err, ErrTransport)
	assert.True(t, Retryable(err))
}

func TestRPCSenderUnreachable(t *testing.T) {
	sender := NewRPCSender("127.0.0.1:1")

	_, err := sender.Send(context.Background(), Submission{SessionID: "x"})
	require.ErrorIs(t, err, ErrTransport)
	assert.True(t, Retryable(err))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(ErrTransport))
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.True(t, Retryable(chunkserver.ErrChunkHashMismatch))
	assert.False(t, Retryable(chunkserver.ErrWholeStreamHashMismatch))
	assert.False(t, Retryable(&chunkserver.StorageError{Op: "write", Path: "/x", Err: os.ErrPermission}))
	assert.False(t, Retryable(context.Canceled))
}

func TestClassify(t *testing.T) {
	err := classify(rpc.ServerError("whole stream hash mismatch: session abc"))
	assert.ErrorIs(t, err, chunkserver.ErrWholeStreamHashMismatch)
	assert.Equal(t, "whole stream hash mismatch: session abc", err.Error())

	err = classify(rpc.ServerError("chunk storage failure: write chunk /x: no space"))
	assert.ErrorIs(t, err, chunkserver.ErrStorage)

	err = classify(errors.New("unexpected EOF"))
	assert.ErrorIs(t, err, ErrTransport)
}
