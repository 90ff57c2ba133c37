package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command
func NewRunCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "run <run-configuration>...",
		Short: "Launch run configurations with mirrord",
		Long: `Launch one or more stored run configurations and wait for them to exit.

Several configurations are launched concurrently; the first failure stops the rest.

Examples:
  mirrord-launch run "Tomcat 10"
  mirrord-launch run "Tomcat api" "Tomcat admin"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return container.Host.Run(cmd.Context(), args[0])
			}
			if err := container.Host.RunAll(cmd.Context(), args); err != nil {
				return fmt.Errorf("launch failed: %w", err)
			}
			return nil
		},
	}
}
