// Command modelctl inspects content models and seeds SQL entry stores.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"cms-graphql/internal/logging"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "modelctl",
		Short: "Inspect content models and seed entry stores",
		Long: `modelctl works offline against the files cms-graphql serves.

It validates content models, shows how every back-reference will be
materialized in the GraphQL schema, and loads JSON entry files into a SQL
entry store.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newValidateCmd(opts),
		newBackrefsCmd(opts),
		newSeedCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version and exit",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "modelctl %s (%s)\n", Version, Commit)
			},
		},
	)
	return root
}

// logger writes to the command's error stream so stdout stays parseable.
func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	return logging.NewLogger(logging.Config{Level: o.logLevel, Format: "text", Output: w}).Logger
}
