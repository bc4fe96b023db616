// Command pgexec runs parameterized statements against PostgreSQL through
// the pooled executor and can expose pool metrics over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vortex-fintech/pgexec/foundation/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	env   string
	style string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "pgexec",
		Short:         "Pooled PostgreSQL statement runner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.env, "env", os.Getenv(logger.EnvVar), "logging profile: development, debug or production")
	root.PersistentFlags().StringVar(&g.style, "style", "format", "placeholder style: format (%s, %(name)s) or qmark (?)")

	root.AddCommand(
		execCmd(g, false),
		execCmd(g, true),
		renderCmd(g),
		serveCmd(g),
	)
	return root
}
