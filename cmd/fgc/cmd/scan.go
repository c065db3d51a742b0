package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

func NewScanCmd(c *Context) *cobra.Command {
	ctx := context.Background()
	return &cobra.Command{
		Use:   "scan",
		Short: "Trigger a full index scan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.Client.Scan(ctx)
			if err != nil {
				return err
			}
			logutil.GetLogger(ctx).Info("scan finished",
				zap.Int64("scanned", res.Scanned), zap.Int64("skipped", res.Skipped),
				zap.Int64("added", res.Added), zap.Int64("moved", res.Moved),
				zap.Int64("removed", res.Removed), zap.Int64("duration_ms", res.DurationMs))
			return nil
		},
	}
}

func init() {
	register(NewScanCmd)
}
