package main

import (
	"context"

	core "github.com/pyropy/chunkup/core/chunkserver"
	rpc "github.com/pyropy/chunkup/rpc/chunkserver"
)

type API struct {
	server *core.ChunkServer
}

var _ rpc.IChunkServer = (*API)(nil)

func NewChunkServerAPI(chunkServer *core.ChunkServer) *API {
	return &API{
		server: chunkServer,
	}
}

// HealthCheck reports liveness together with session counters.
func (a *API) HealthCheck(_ *rpc.HealthCheckArgs, reply *rpc.HealthCheckReply) error {
	reply.Status = rpc.StatusOK
	reply.ActiveSessions, reply.CommittedSessions = a.server.Stats()

	return nil
}

// OpenSession reserves a session id for an upload about to start.
func (a *API) OpenSession(args *rpc.OpenSessionArgs, reply *rpc.OpenSessionReply) error {
	log.Infow("rpc", "event", "ChunkServerAPI.OpenSession", "session", args.SessionID)

	if err := a.server.Reserve(context.Background(), args.SessionID); err != nil {
		return err
	}

	reply.Status = rpc.StatusOK
	return nil
}

// SubmitChunk verifies and stores one chunk of an upload session.
func (a *API) SubmitChunk(args *rpc.SubmitChunkArgs, reply *rpc.SubmitChunkReply) error {
	log.Infow("rpc", "event", "ChunkServerAPI.SubmitChunk", "session", args.SessionID, "offset", args.Offset, "size", args.Size, "final", args.Final)

	res, err := a.server.Submit(context.Background(), core.SubmitRequest{
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
		log.Warnw("rpc", "event", "ChunkServerAPI.SubmitChunk", "session", args.SessionID, "offset", args.Offset, "error", err)
		return err
	}

	reply.Status = rpc.StatusOK
	if res.Pending {
		reply.Status = rpc.StatusAccepted
	}

	reply.Committed = res.Committed
	reply.Pending = res.Pending
	reply.ArtifactPath = res.ArtifactPath

	return nil
}
