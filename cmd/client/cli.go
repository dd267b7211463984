package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/pyropy/chunkup/core/client"
	"github.com/pyropy/chunkup/core/model"
)

var uploadCmd = &cli.Command{
	Name:  "upload",
	Usage: "Upload a file to the chunk server",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "file-path",
			Required: true,
			Usage:    "Path to the file you want to upload",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Name of the artifact on the chunk server, defaults to the file name",
		},
		&cli.Int64Flag{
			Name:  "chunk-size",
			Value: 4 << 20,
			Usage: "Size of a single chunk in bytes",
		},
		&cli.IntFlag{
			Name:  "attempts",
			Value: client.DefaultMaxAttempts,
			Usage: "Attempts per chunk before the upload is aborted",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: client.DefaultRequestTimeout,
			Usage: "Timeout of a single chunk transfer",
		},
		&cli.StringSliceFlag{
			Name:  "param",
			Usage: "Extra key=value parameter sent with every chunk",
		},
	},
	Action: func(ctx *cli.Context) error {
		filePath := ctx.String("file-path")
		storePath := ctx.String("store")
		rpcUrl := ctx.String("rpc-url")

		params, err := parseParams(ctx.StringSlice("param"))
		if err != nil {
			return err
		}

		name := ctx.String("name")
		if name == "" {
			name = filePath
		}

		c, err := client.NewClient(rpcUrl, storePath)
		if err != nil {
			return err
		}
		defer c.Close()

		cctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := c.UploadFile(cctx, filePath,
			client.WithChunkSize(ctx.Int64("chunk-size")),
			client.WithMaxAttempts(ctx.Int("attempts")),
			client.WithRequestTimeout(ctx.Duration("timeout")),
			client.WithFilename(name),
			client.WithParams(params),
			client.WithProgress(func(p float64) {
				log.Debugw("upload", "progress", fmt.Sprintf("%.1f%%", p*100))
			}),
		)
		if err != nil {
			return err
		}

		log.Infow("upload", "status", "completed", "upload", res.UploadID, "session", res.SessionID, "chunks", res.Chunks, "size", res.TotalSize, "hash", res.Hash, "artifact", res.ArtifactPath)
		fmt.Println(res.UploadID, res.SessionID, res.Hash)

		return nil
	},
}

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "List all uploads",
	Action: func(ctx *cli.Context) error {
		storePath := ctx.String("store")

		history, err := client.NewUploadHistory(storePath)
		if err != nil {
			return err
		}
		defer history.Close()

		records, err := history.All(context.Background())
		if err != nil {
			return err
		}

		return printUploads(os.Stdout, records)
	},
}

func printUploads(out io.Writer, records []*model.UploadRecord) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSESSION\tSTATUS\tSIZE\tCHUNKS\tHASH\tSOURCE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", r.ID, r.SessionID, r.Status, r.TotalSize, r.Chunks, r.Hash, r.Source)
	}

	return w.Flush()
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", p)
		}
		params[k] = v
	}

	return params, nil
}
