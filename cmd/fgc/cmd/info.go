package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type infoArgs struct {
	path         string
	showHidden   bool
	computeSizes bool
}

func NewInfoCmd(c *Context) *cobra.Command {
	args := &infoArgs{}
	ctx := context.Background()
	subc := &cobra.Command{
		Use:   "info",
		Short: "Stat a file or list a directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(args.path) == 0 {
				return fmt.Errorf("--path is required")
			}
			info, err := c.Client.Info(ctx, args.path, args.showHidden, args.computeSizes)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
	subc.PersistentFlags().StringVarP(&args.path, "path", "p", "", "remote path")
	subc.PersistentFlags().BoolVar(&args.showHidden, "show-hidden", false, "include hidden entries")
	subc.PersistentFlags().BoolVar(&args.computeSizes, "compute-sizes", false, "compute recursive directory sizes")
	return subc
}

func init() {
	register(NewInfoCmd)
}
