package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type downloadArgs struct {
	path string
	out  string
}

func NewDownloadCmd(c *Context) *cobra.Command {
	args := &downloadArgs{}
	ctx := context.Background()
	subc := &cobra.Command{
		Use:   "download",
		Short: "Download a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onRunDownload(ctx, c, args)
		},
	}
	subc.PersistentFlags().StringVarP(&args.path, "path", "p", "", "remote path")
	subc.PersistentFlags().StringVarP(&args.out, "out", "o", "", "local output file")
	return subc
}

func onRunDownload(ctx context.Context, c *Context, args *downloadArgs) error {
	if len(args.path) == 0 || len(args.out) == 0 {
		return fmt.Errorf("both --path and --out are required")
	}
	f, err := os.Create(args.out)
	if err != nil {
		return err
	}
	defer f.Close()
	start := time.Now()
	if err := c.Client.Download(ctx, args.path, f); err != nil {
		return fmt.Errorf("download failed, err:%w", err)
	}
	logutil.GetLogger(ctx).Info("download succ", zap.String("out", args.out), zap.Duration("cost", time.Since(start)))
	return nil
}

func init() {
	register(NewDownloadCmd)
}
