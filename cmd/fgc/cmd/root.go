package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"

	"github.com/ValentinKolb/filegate/client"
)

const (
	hostEnv  = "FGC_HOST"
	tokenEnv = "FGC_TOKEN"
)

var cmds []CreateFunc

// Context carries the configured client into every subcommand.
type Context struct {
	Client *client.Client
}

type CreateFunc func(ctx *Context) *cobra.Command

func register(cr CreateFunc) {
	cmds = append(cmds, cr)
}

func NewRoot() *cobra.Command {
	var (
		host     string
		token    string
		schema   string
		logLevel string
	)
	ctx := &Context{}
	rootCmd := &cobra.Command{
		Use:   "fgc",
		Short: "Filegate CLI tool",
	}
	for _, cr := range cmds {
		rootCmd.AddCommand(cr(ctx))
	}
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if len(host) == 0 {
			host = os.Getenv(hostEnv)
		}
		if len(token) == 0 {
			token = os.Getenv(tokenEnv)
		}
		logger.Init("", logLevel, 0, 0, 0, true)
		cli, err := client.New(client.WithSchema(schema), client.WithHost(host), client.WithToken(token))
		if err != nil {
			return err
		}
		ctx.Client = cli
		return nil
	}
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "server host (or "+hostEnv+")")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (or "+tokenEnv+")")
	rootCmd.PersistentFlags().StringVar(&schema, "schema", "https", "http or https")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	return rootCmd
}
