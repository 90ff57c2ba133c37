package cli

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/application/services"
	"mirrord.dev/launch/internal/infrastructure/host"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// CLIContainer holds all the dependencies for CLI commands
type CLIContainer struct {
	ConfigService *services.ConfigurationService
	Interceptor   *services.LaunchInterceptor
	Host          *host.LocalHost
	RunConfigs    ports.RunConfigurationRepository
	Logger        ports.LoggingGateway
	MainContainer interface{} // *di.Container, kept opaque to avoid an import cycle
}

// NewRootCommand creates the base command
func NewRootCommand(container *CLIContainer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mirrord-launch",
		Short: "Launch Tomcat run configurations with mirrord",
		Long: `mirrord-launch starts Tomcat run configurations with the mirrord layer injected.

Before a launch the run configuration is patched with the environment mirrord
computes for it; on macOS the startup script is replaced by mirrord's patched
copy. Once the process started, or failed to start, the configuration is put
back exactly as it was.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigurationOverrides(cmd, container); err != nil {
				return fmt.Errorf("failed to apply configuration overrides: %w", err)
			}
			return nil
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config file path (default is $XDG_CONFIG_HOME/mirrord-launch/config.yaml)")

	rootCmd.AddCommand(NewRunCommand(container))
	rootCmd.AddCommand(NewInspectCommand(container))
	rootCmd.AddCommand(NewListCommand(container))
	rootCmd.AddCommand(NewDashboardCommand(container))
	rootCmd.AddCommand(NewConfigCommand(container))

	return rootCmd
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// applyConfigurationOverrides rebuilds the container when --config or
// --debug was given explicitly
func applyConfigurationOverrides(cmd *cobra.Command, container *CLIContainer) error {
	mainContainer, ok := container.MainContainer.(interface {
		ApplyOverrides(configPath string, debug bool) error
	})
	if !ok {
		return nil
	}

	flags := cmd.Flags()
	if !flags.Changed("config") && !flags.Changed("debug") {
		return nil
	}

	configPath, _ := flags.GetString("config")
	debugMode, _ := flags.GetBool("debug")
	return mainContainer.ApplyOverrides(configPath, debugMode)
}

// Execute builds the root command and runs it under ctx
func Execute(ctx context.Context, container *CLIContainer) error {
	return NewRootCommand(container).ExecuteContext(ctx)
}
