package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewListCommand creates the list command
func NewListCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored run configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := container.RunConfigs.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "No run configurations found")
				return nil
			}
			for _, name := range names {
				marker := " "
				if cfg, err := container.RunConfigs.Load(name); err == nil && container.Interceptor.Manages(cfg.LaunchEnvironment()) {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, name)
			}
			return nil
		},
	}
}
