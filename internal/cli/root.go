// Package cli wires configuration, the supervisor and the HTTP API into the
// taskgate command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskgate/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskgate",
		Short: "Sandboxed task execution gateway",
		Long: `taskgate accepts plain-English task descriptions, classifies them into
one of a fixed set of task kinds with an LLM, and executes the matching
handler. Every path a task touches must lie inside the sandbox root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to config.yaml or its directory (default: built-in defaults)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.LoadOrDefault(path)
}
