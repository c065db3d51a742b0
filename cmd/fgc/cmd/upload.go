package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type uploadArgs struct {
	file      string
	dest      string
	chunkSize int64
	threads   int
}

func NewUploadCmd(c *Context) *cobra.Command {
	args := &uploadArgs{}
	ctx := context.Background()
	subc := &cobra.Command{
		Use:   "upload",
		Short: "Upload a file through the chunk API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onRunUpload(ctx, c, args)
		},
	}
	subc.PersistentFlags().StringVarP(&args.file, "file", "f", "", "local file to upload")
	subc.PersistentFlags().StringVarP(&args.dest, "dest", "d", "", "remote directory")
	subc.PersistentFlags().Int64Var(&args.chunkSize, "chunk-size", 8<<20, "chunk size in bytes")
	subc.PersistentFlags().IntVarP(&args.threads, "threads", "t", 4, "parallel chunk uploads")
	return subc
}

func onRunUpload(ctx context.Context, c *Context, args *uploadArgs) error {
	if len(args.file) == 0 || len(args.dest) == 0 {
		return fmt.Errorf("both --file and --dest are required")
	}
	start := time.Now()
	info, err := c.Client.ChunkedUpload(ctx, args.file, args.dest, filepath.Base(args.file), args.chunkSize, args.threads)
	if err != nil {
		return fmt.Errorf("upload file failed, err:%w", err)
	}
	logutil.GetLogger(ctx).Info("upload file succ",
		zap.String("path", info.Path), zap.Int64("size", info.Size),
		zap.String("checksum", info.Checksum), zap.Duration("cost", time.Since(start)))
	return nil
}

func init() {
	register(NewUploadCmd)
}
