package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pyropy/chunkup/lib/logger"
)

var log, _ = logger.New("client-cli")

func main() {
	app := &cli.App{
		Name:  "chunkup",
		Usage: "Upload files to a chunk server in verified chunks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Value:   "localhost:1235",
				EnvVars: []string{"CHUNKUP_RPC_URL"},
				Usage:   "Address of the chunk server",
			},
			&cli.StringFlag{
				Name:    "store",
				Value:   ".chunkup",
				EnvVars: []string{"CHUNKUP_STORE"},
				Usage:   "Directory of the local upload history",
			},
		},
		Commands: []*cli.Command{
			uploadCmd,
			listCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalw("client", "error", err)
	}
}
