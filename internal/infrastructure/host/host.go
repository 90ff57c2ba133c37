// Package host is a local stand-in for the IDE: it owns run configurations,
// starts their processes and drives the execution listener around each start.
package host

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-shellwords"
	"golang.org/x/sync/errgroup"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/core/runconfig"
	"mirrord.dev/launch/internal/core/script"
)

// CatalinaOptsEnv carries the VM parameters to catalina.sh
const CatalinaOptsEnv = "CATALINA_OPTS"

// Options configures a LocalHost
type Options struct {
	// BaseEnv is inherited by every launched process, before the
	// configuration's own records
	BaseEnv []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// Launch is one started launch
type Launch struct {
	ID      runconfig.LaunchID
	Name    string
	Command ports.Command
	Process ports.Process
}

// Inspection is the outcome of a dry run: the configuration as the process
// would have received it, and as it was left afterwards
type Inspection struct {
	ID      runconfig.LaunchID
	Before  runconfig.Document
	Patched runconfig.Document
	After   runconfig.Document
	Command ports.Command
}

// LocalHost launches run configurations stored in a repository
type LocalHost struct {
	repo         ports.RunConfigurationRepository
	listener     ports.ExecutionListener
	executor     ports.ProcessExecutor
	serverModels ports.ServerModelResolver
	logger       ports.LoggingGateway
	opts         Options
}

// NewLocalHost creates a new local host
func NewLocalHost(
	repo ports.RunConfigurationRepository,
	listener ports.ExecutionListener,
	executor ports.ProcessExecutor,
	serverModels ports.ServerModelResolver,
	logger ports.LoggingGateway,
	opts Options,
) *LocalHost {
	return &LocalHost{
		repo:         repo,
		listener:     listener,
		executor:     executor,
		serverModels: serverModels,
		logger:       logger,
		opts:         opts,
	}
}

// Launch runs one schedule, start, started-or-not-started cycle. The
// configuration is persisted again afterwards, in its restored form.
func (h *LocalHost) Launch(ctx context.Context, name string) (*Launch, error) {
	cfg, err := h.repo.Load(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load run configuration: %w", err)
	}

	id := runconfig.GenerateLaunchID()
	env := cfg.LaunchEnvironment()

	h.listener.ProcessStartScheduled(ctx, id, env)

	cmd, err := h.BuildCommand(cfg)
	if err != nil {
		h.listener.ProcessNotStarted(id, env)
		return nil, fmt.Errorf("failed to build command for %q: %w", name, err)
	}

	proc, err := h.executor.Start(ctx, cmd)
	if err != nil {
		h.listener.ProcessNotStarted(id, env)
		return nil, fmt.Errorf("failed to start %q: %w", name, err)
	}
	h.listener.ProcessStarted(id, env, proc)

	if err := h.repo.Save(cfg); err != nil {
		h.logger.LogError(err, "Failed to persist run configuration", map[string]interface{}{"name": name})
	}

	return &Launch{ID: id, Name: name, Command: cmd, Process: proc}, nil
}

// Run launches name and waits for its process to exit
func (h *LocalHost) Run(ctx context.Context, name string) error {
	launch, err := h.Launch(ctx, name)
	if err != nil {
		return err
	}
	if err := launch.Process.Wait(); err != nil {
		return fmt.Errorf("%q exited with code %d: %w", name, launch.Process.ExitCode(), err)
	}
	return nil
}

// RunAll runs every named configuration concurrently. The first failure
// cancels the others.
func (h *LocalHost) RunAll(ctx context.Context, names []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return h.Run(ctx, name)
		})
	}
	return g.Wait()
}

// Inspect schedules name without starting it and reports what the process
// would have received. The launch is then reported as not started.
func (h *LocalHost) Inspect(ctx context.Context, name string) (*Inspection, error) {
	cfg, err := h.repo.Load(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load run configuration: %w", err)
	}

	id := runconfig.GenerateLaunchID()
	env := cfg.LaunchEnvironment()
	result := &Inspection{ID: id, Before: cfg.Document()}

	h.listener.ProcessStartScheduled(ctx, id, env)
	result.Patched = cfg.Document()
	cmd, cmdErr := h.BuildCommand(cfg)
	h.listener.ProcessNotStarted(id, env)
	result.After = cfg.Document()

	if cmdErr != nil {
		return result, fmt.Errorf("failed to build command for %q: %w", name, cmdErr)
	}
	result.Command = cmd
	return result, nil
}

// BuildCommand turns the current state of cfg into a process invocation
func (h *LocalHost) BuildCommand(cfg *runconfig.RunConfiguration) (ports.Command, error) {
	resolved, err := script.Resolve(cfg.StartupDescriptor(), func() (string, error) {
		model, err := h.serverModels.ServerModel(cfg)
		if err != nil {
			return "", err
		}
		return model.Home, nil
	})
	if err != nil {
		return ports.Command{}, err
	}

	executable := strings.ReplaceAll(resolved.Command, `\ `, " ")
	args, err := shellwords.Parse(resolved.Args)
	if err != nil {
		return ports.Command{}, fmt.Errorf("failed to parse program parameters %q: %w", resolved.Args, err)
	}

	vars := cfg.EnvironmentVariables()
	if vm := cfg.BuildVMParameters(); vm != "" {
		opts := vm
		if existing, ok := vars.Find(CatalinaOptsEnv); ok && strings.TrimSpace(existing.Value) != "" {
			opts = existing.Value + " " + vm
		}
		vars = vars.Set(runconfig.EnvironmentVariable{Name: CatalinaOptsEnv, Value: opts})
	}

	if target := cfg.Target(); target != nil && target.WSLDistribution != "" {
		args = append([]string{"-d", target.WSLDistribution, "--", executable}, args...)
		executable = "wsl"
	}

	return ports.Command{
		Executable: executable,
		Args:       args,
		Env:        append(append([]string(nil), h.opts.BaseEnv...), vars.Environ()...),
		Stdout:     h.opts.Stdout,
		Stderr:     h.opts.Stderr,
	}, nil
}
