package cli

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mirrord.dev/launch/internal/core/runconfig"
	"mirrord.dev/launch/internal/infrastructure/host"
)

// envChange is one environment record a launch patch added or replaced
type envChange struct {
	Name string `yaml:"name"`
	Old  string `yaml:"old,omitempty"`
	New  string `yaml:"new"`
	Kind string `yaml:"kind"`
}

// inspectReport is the YAML form of an inspection
type inspectReport struct {
	Name        string                      `yaml:"name"`
	LaunchID    string                      `yaml:"launch_id"`
	Command     []string                    `yaml:"command"`
	Environment []envChange                 `yaml:"environment"`
	Startup     runconfig.StartupDescriptor `yaml:"startup"`
	Restored    bool                        `yaml:"restored"`
}

// NewInspectCommand creates the inspect command
func NewInspectCommand(container *CLIContainer) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "inspect <run-configuration>",
		Short: "Show what a launch would receive, without starting it",
		Long: `Patch a run configuration as a real launch would, report the patched
environment, startup script and command, then restore the configuration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inspection, err := container.Host.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			report := newInspectReport(args[0], inspection)
			switch output {
			case "yaml":
				return yaml.NewEncoder(cmd.OutOrStdout()).Encode(report)
			case "text", "":
				printInspectReport(cmd.OutOrStdout(), report)
				return nil
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, yaml)")
	return cmd
}

func newInspectReport(name string, inspection *host.Inspection) inspectReport {
	return inspectReport{
		Name:        name,
		LaunchID:    inspection.ID.String(),
		Command:     append([]string{inspection.Command.Executable}, inspection.Command.Args...),
		Environment: diffEnvironment(inspection.Before.Environment, inspection.Patched.Environment),
		Startup:     inspection.Patched.Startup,
		Restored:    reflect.DeepEqual(inspection.Before, inspection.After),
	}
}

// diffEnvironment lists the records of patched that differ from before, in
// patched order
func diffEnvironment(before, patched runconfig.EnvironmentVariables) []envChange {
	var changes []envChange
	for _, v := range patched {
		old, ok := before.Find(v.Name)
		switch {
		case !ok:
			changes = append(changes, envChange{Name: v.Name, New: v.Value, Kind: "added"})
		case old.Value != v.Value:
			changes = append(changes, envChange{Name: v.Name, Old: old.Value, New: v.Value, Kind: "replaced"})
		}
	}
	return changes
}

func printInspectReport(out io.Writer, report inspectReport) {
	heading := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	added := lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	replaced := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	fmt.Fprintln(out, heading.Render("Run configuration: "+report.Name))
	fmt.Fprintf(out, "Launch ID: %s\n", report.LaunchID)
	fmt.Fprintf(out, "Command:   %s\n", strings.Join(report.Command, " "))

	fmt.Fprintln(out, heading.Render("Environment"))
	if len(report.Environment) == 0 {
		fmt.Fprintln(out, "  (unchanged)")
	}
	for _, c := range report.Environment {
		if c.Kind == "added" {
			fmt.Fprintln(out, added.Render(fmt.Sprintf("  + %s=%s", c.Name, c.New)))
			continue
		}
		fmt.Fprintln(out, replaced.Render(fmt.Sprintf("  ~ %s=%s (was %s)", c.Name, c.New, c.Old)))
	}

	fmt.Fprintln(out, heading.Render("Startup"))
	if report.Startup.UseDefault {
		fmt.Fprintf(out, "  default script: %s\n", report.Startup.DefaultScript)
	} else {
		fmt.Fprintf(out, "  script:         %s\n", report.Startup.Script)
		fmt.Fprintf(out, "  program args:   %s\n", report.Startup.ProgramParameters)
	}
	if report.Startup.VMParameters != "" {
		fmt.Fprintf(out, "  vm parameters:  %s\n", report.Startup.VMParameters)
	}

	fmt.Fprintf(out, "Restored: %t\n", report.Restored)
}
