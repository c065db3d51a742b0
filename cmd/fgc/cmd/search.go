package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type searchArgs struct {
	paths   string
	pattern string
	limit   int
}

func NewSearchCmd(c *Context) *cobra.Command {
	args := &searchArgs{}
	ctx := context.Background()
	subc := &cobra.Command{
		Use:   "search",
		Short: "Glob search under one or more bases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(args.paths) == 0 || len(args.pattern) == 0 {
				return fmt.Errorf("both --paths and --pattern are required")
			}
			rsp, err := c.Client.Search(ctx, args.paths, args.pattern, args.limit)
			if err != nil {
				return err
			}
			for _, item := range rsp.Results {
				fmt.Fprintf(os.Stdout, "%s\t%s\t%d\n", item.Type, item.Path, item.Size)
			}
			if rsp.HasMore {
				fmt.Fprintln(os.Stdout, "... more results truncated")
			}
			return nil
		},
	}
	subc.PersistentFlags().StringVar(&args.paths, "paths", "", "comma-separated base paths")
	subc.PersistentFlags().StringVar(&args.pattern, "pattern", "", "glob pattern")
	subc.PersistentFlags().IntVar(&args.limit, "limit", 0, "per-base result cap")
	return subc
}

func init() {
	register(NewSearchCmd)
}
