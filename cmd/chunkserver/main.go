package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"

	"github.com/pyropy/chunkup/core/chunkserver"
	"github.com/pyropy/chunkup/lib/logger"
	chunkServerRPC "github.com/pyropy/chunkup/rpc/chunkserver"
)

var log, _ = logger.New("chunk-server-rpc")

func main() {
	if err := run(); err != nil {
		log.Fatalw("startup", "error", err)
	}
}

func run() error {
	cfg, err := chunkserver.GetConfig()
	if err != nil {
		log.Errorw("startup", "error", "config error")
		return err
	}

	chunkServer := chunkserver.NewChunkServer(cfg)
	if err := os.MkdirAll(chunkServer.Store.Root(), 0750); err != nil {
		log.Errorw("startup", "error", "cannot create chunk directory", "path", chunkServer.Store.Root())
		return err
	}

	server := rpc.NewServer()
	if err := server.RegisterName(chunkServerRPC.ServiceName, NewChunkServerAPI(chunkServer)); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, server)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Errorw("startup", "error", "net listen failed")
		return err
	}

	listenAddr := l.Addr().String()
	httpServer := &http.Server{Handler: mux}

	log.Infow("startup", "status", "chunkserver rpc server started", "address", listenAddr, "chunks", cfg.Chunks.Path)
	defer log.Infow("shutdown", "status", "chunkserver rpc server stopped", "address", listenAddr)
	go httpServer.Serve(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start removing abandoned sessions
	janitor := chunkserver.NewJanitor(chunkServer.Store, cfg.Chunks.SessionTTL, cfg.Chunks.SweepInterval)
	go janitor.Start(ctx)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	log.Infow("shutdown", "status", "chunkserver rpc server stopping", "address", listenAddr)

	return httpServer.Shutdown(ctx)
}
