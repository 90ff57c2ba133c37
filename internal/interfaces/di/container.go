package di

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/application/services"
	"mirrord.dev/launch/internal/core/runconfig"
	"mirrord.dev/launch/internal/core/snapshot"
	"mirrord.dev/launch/internal/infrastructure/config"
	"mirrord.dev/launch/internal/infrastructure/execmanager"
	"mirrord.dev/launch/internal/infrastructure/host"
	"mirrord.dev/launch/internal/infrastructure/logging"
	"mirrord.dev/launch/internal/infrastructure/notify"
	"mirrord.dev/launch/internal/infrastructure/process"
	"mirrord.dev/launch/internal/infrastructure/runconfigstore"
	"mirrord.dev/launch/internal/interfaces/cli"
)

// Options controls how the container is assembled
type Options struct {
	// ConfigPath overrides the configuration file location
	ConfigPath string
	// Debug forces debug logging
	Debug    bool
	Platform runconfig.Platform
	// Stderr receives logs and notifications
	Stderr io.Writer
	Stdout io.Writer
}

// Container holds all application dependencies
type Container struct {
	opts Options

	// Configuration
	ConfigRepo    *config.CompositeConfigRepository
	ConfigService *services.ConfigurationService
	Config        *ports.Configuration

	// Core services
	Snapshots   *snapshot.Store
	Interceptor *services.LaunchInterceptor

	// Infrastructure
	ExecManager *execmanager.BinaryExecManager
	Notifier    *notify.ConsoleNotifier
	RunConfigs  *runconfigstore.FileRepository
	Host        *host.LocalHost

	// CLI
	CLIContainer *cli.CLIContainer

	// Logger
	Logger *logging.Gateway
}

// NewContainer creates the container for the current process
func NewContainer() (*Container, error) {
	return NewContainerWithOptions(Options{})
}

// NewContainerWithOptions creates and configures the dependency injection container
func NewContainerWithOptions(opts Options) (*Container, error) {
	if opts.Platform.GOOS == "" {
		opts.Platform = runconfig.CurrentPlatform()
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	container := &Container{
		opts:         opts,
		CLIContainer: &cli.CLIContainer{},
	}
	if err := container.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return container, nil
}

// initializeComponents wires every component from the loaded configuration
func (c *Container) initializeComponents() error {
	c.Logger = logging.FromLogger(log.New(c.opts.Stderr, logging.Prefix, log.LstdFlags), ports.LogLevelInfo)

	// 1. Configuration
	c.ConfigRepo = config.NewCompositeConfigRepository(c.opts.ConfigPath)
	c.ConfigRepo.SetLogger(c.Logger)
	c.ConfigService = services.NewConfigurationService(c.ConfigRepo, c.Logger)

	appConfig, err := c.ConfigRepo.Load()
	if err != nil {
		c.Logger.LogError(err, "Failed to load configuration, using defaults", nil)
		appConfig = c.ConfigRepo.LoadDefault()
	}
	if c.opts.Debug {
		appConfig.Debug = true
	}
	c.Config = appConfig

	level := ports.ParseLogLevel(appConfig.LogLevel)
	if appConfig.Debug {
		level = ports.LogLevelDebug
	}
	c.Logger.SetLogLevel(level)

	// 2. Infrastructure
	c.ExecManager = execmanager.NewBinaryExecManager(execmanager.Options{
		Binary:   appConfig.MirrordBinary,
		Timeout:  services.ExecTimeout(appConfig),
		Disabled: appConfig.Disabled,
	}, c.Logger)
	c.Notifier = notify.NewConsoleNotifier(c.opts.Stderr, "mirrord")
	c.RunConfigs = runconfigstore.NewFileRepository(appConfig.RunConfigDir)

	// 3. Interceptor
	c.Snapshots = snapshot.NewStore()
	c.Interceptor = services.NewLaunchInterceptor(
		c.ExecManager,
		host.ServerModels{},
		c.Notifier,
		c.Logger,
		c.Snapshots,
		services.InterceptorSettingsFrom(appConfig, c.opts.Platform),
	)

	// 4. Host
	c.Host = host.NewLocalHost(
		c.RunConfigs,
		c.Interceptor,
		process.NewExecutor(),
		host.ServerModels{},
		c.Logger,
		host.Options{BaseEnv: os.Environ(), Stdout: c.opts.Stdout, Stderr: c.opts.Stderr},
	)

	// 5. CLI, updated in place so commands built earlier see the new wiring
	*c.CLIContainer = cli.CLIContainer{
		ConfigService: c.ConfigService,
		Interceptor:   c.Interceptor,
		Host:          c.Host,
		RunConfigs:    c.RunConfigs,
		Logger:        c.Logger,
		MainContainer: c,
	}

	c.Logger.Log(ports.LogLevelDebug, "Dependency injection container initialized", map[string]interface{}{
		"config_path":    c.ConfigRepo.GetConfigPath(),
		"run_config_dir": appConfig.RunConfigDir,
		"platform":       c.opts.Platform.String(),
	})
	return nil
}

// ApplyOverrides rebuilds the container with the command line's --config and
// --debug values
func (c *Container) ApplyOverrides(configPath string, debug bool) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file %s: %w", configPath, err)
		}
		c.opts.ConfigPath = configPath
	}
	c.opts.Debug = c.opts.Debug || debug
	return c.initializeComponents()
}

// GetCLIContainer returns the CLI container for command execution
func (c *Container) GetCLIContainer() *cli.CLIContainer {
	return c.CLIContainer
}

// Shutdown reports launches still holding a snapshot. Their hosts restore
// them when the start attempt ends.
func (c *Container) Shutdown(ctx context.Context) error {
	if pending := c.Snapshots.Pending(); len(pending) > 0 {
		c.Logger.Log(ports.LogLevelWarn, "Shutting down with launches still patched", map[string]interface{}{
			"pending": len(pending),
		})
	}
	return nil
}
