package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/core/javaopts"
	"mirrord.dev/launch/internal/core/runconfig"
	"mirrord.dev/launch/internal/core/script"
	"mirrord.dev/launch/internal/core/snapshot"
)

const (
	// DetectDebuggerPortEnv tells the layer how to find the debugger port
	DetectDebuggerPortEnv = "MIRRORD_DETECT_DEBUGGER_PORT"

	// IgnoreDebuggerPortsEnv lists ports the layer must not treat as debugger
	// ports. The server's shutdown port goes here so stopping the server is
	// not blocked when the outgoing feature is enabled.
	IgnoreDebuggerPortsEnv = "MIRRORD_IGNORE_DEBUGGER_PORTS"

	// DefaultServerPort is Tomcat's default shutdown port
	DefaultServerPort = "8005"

	// DefaultConfigEnvName carries the path of the user's mirrord config
	DefaultConfigEnvName = "MIRRORD_CONFIG_FILE"

	detectDebuggerPortValue = "javaagent"

	failureNotification = "Cannot abort run due to platform limitations, running without mirrord"
)

// InterceptorSettings configures which launches are intercepted and how
type InterceptorSettings struct {
	ManagedKind       string
	ManagedNamePrefix string
	ConfigEnvName     string
	Product           string
	ServerPort        string
	Platform          runconfig.Platform
}

// DefaultInterceptorSettings returns the settings for Tomcat run configurations
func DefaultInterceptorSettings() InterceptorSettings {
	return InterceptorSettings{
		ManagedKind:       "tomcat",
		ManagedNamePrefix: "Tomcat",
		ConfigEnvName:     DefaultConfigEnvName,
		Product:           "idea",
		ServerPort:        DefaultServerPort,
		Platform:          runconfig.CurrentPlatform(),
	}
}

// LaunchInterceptor patches a run configuration before the host launches it
// and restores it once the launch attempt is over, whatever the outcome.
//
// A launch ID is Idle until ProcessStartScheduled stores a snapshot for it,
// Scheduled while the snapshot is held, and terminal once ProcessStarted or
// ProcessNotStarted consumed the snapshot.
type LaunchInterceptor struct {
	execManager  ports.ExecManager
	serverModels ports.ServerModelResolver
	notifier     ports.NotificationGateway
	logger       ports.LoggingGateway
	snapshots    *snapshot.Store
	settings     InterceptorSettings

	observerMu sync.RWMutex
	observer   ports.LifecycleObserver
}

// NewLaunchInterceptor creates a new launch interceptor
func NewLaunchInterceptor(
	execManager ports.ExecManager,
	serverModels ports.ServerModelResolver,
	notifier ports.NotificationGateway,
	logger ports.LoggingGateway,
	snapshots *snapshot.Store,
	settings InterceptorSettings,
) *LaunchInterceptor {
	if snapshots == nil {
		snapshots = snapshot.NewStore()
	}
	if settings.ServerPort == "" {
		settings.ServerPort = DefaultServerPort
	}
	if settings.ConfigEnvName == "" {
		settings.ConfigEnvName = DefaultConfigEnvName
	}
	return &LaunchInterceptor{
		execManager:  execManager,
		serverModels: serverModels,
		notifier:     notifier,
		logger:       logger,
		snapshots:    snapshots,
		settings:     settings,
	}
}

// SetObserver registers the observer receiving lifecycle events
func (i *LaunchInterceptor) SetObserver(observer ports.LifecycleObserver) {
	i.observerMu.Lock()
	defer i.observerMu.Unlock()
	i.observer = observer
}

// Snapshots returns the store holding the snapshots of patched launches
func (i *LaunchInterceptor) Snapshots() *snapshot.Store {
	return i.snapshots
}

// Settings returns the interceptor settings
func (i *LaunchInterceptor) Settings() InterceptorSettings {
	return i.settings
}

// Manages reports whether env is a launch this interceptor patches
func (i *LaunchInterceptor) Manages(env *runconfig.LaunchEnvironment) bool {
	if env == nil || env.Configuration == nil {
		return false
	}
	if i.settings.ManagedKind != "" && env.Kind != i.settings.ManagedKind {
		return false
	}
	return strings.HasPrefix(env.Name, i.settings.ManagedNamePrefix)
}

// ProcessStartScheduled patches the run configuration of a managed launch.
// Failures never reach the host: the configuration is rolled back, the user
// is warned once and the launch goes ahead without mirrord.
func (i *LaunchInterceptor) ProcessStartScheduled(ctx context.Context, id runconfig.LaunchID, env *runconfig.LaunchEnvironment) {
	if !i.Manages(env) {
		return
	}
	i.emit(id, env, ports.PhaseScheduled, "")

	patched, err := i.interceptRecovering(ctx, id, env)
	if err != nil {
		i.logger.LogError(err, "Running tomcat project failed", map[string]interface{}{
			"launch_id": id.String(),
			"name":      env.Name,
		})
		i.restore(id, env.Configuration)
		i.notifier.NotifySimple(failureNotification, ports.NotificationTypeWarning)
		i.emit(id, env, ports.PhaseFailed, err.Error())
		return
	}

	if !patched {
		i.logger.LogLaunch(id, env, "mirrord declined to patch the launch")
		i.emit(id, env, ports.PhaseSkipped, "no patch")
		return
	}

	i.logger.LogLaunch(id, env, "run configuration patched")
	i.emit(id, env, ports.PhasePatched, "")
}

// ProcessNotStarted restores the configuration after a failed start attempt
func (i *LaunchInterceptor) ProcessNotStarted(id runconfig.LaunchID, env *runconfig.LaunchEnvironment) {
	if !i.Manages(env) {
		return
	}
	i.emit(id, env, ports.PhaseNotStarted, "")
	i.Restore(id, env)
}

// ProcessStarted restores the configuration once the process is running. The
// process already inherited the patched environment.
func (i *LaunchInterceptor) ProcessStarted(id runconfig.LaunchID, env *runconfig.LaunchEnvironment, handle ports.ProcessHandle) {
	if !i.Manages(env) {
		return
	}
	detail := ""
	if handle != nil {
		detail = fmt.Sprintf("pid %d", handle.PID())
	}
	i.emit(id, env, ports.PhaseStarted, detail)
	i.Restore(id, env)
}

// Restore writes the snapshot of id back into the configuration of env. It
// returns false, touching nothing, when no snapshot is held for id.
func (i *LaunchInterceptor) Restore(id runconfig.LaunchID, env *runconfig.LaunchEnvironment) bool {
	if env == nil || env.Configuration == nil {
		return false
	}
	if !i.restore(id, env.Configuration) {
		return false
	}
	i.logger.LogLaunch(id, env, "run configuration restored")
	i.emit(id, env, ports.PhaseRestored, "")
	return true
}

func (i *LaunchInterceptor) restore(id runconfig.LaunchID, view runconfig.View) bool {
	saved, ok := i.snapshots.TakeAndRemove(id)
	if !ok {
		return false
	}
	view.SetEnvironmentVariables(saved.Environment)
	if saved.Startup != nil {
		view.UpdateStartupDescriptor(saved.Startup.ApplyTo)
	}
	return true
}

// interceptRecovering runs intercept, turning a panic raised by a
// collaborator into an error.
func (i *LaunchInterceptor) interceptRecovering(ctx context.Context, id runconfig.LaunchID, env *runconfig.LaunchEnvironment) (patched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			patched = false
			err = fmt.Errorf("launch interception panicked: %v", r)
		}
	}()
	return i.intercept(ctx, id, env)
}

// intercept runs the schedule phase. It returns false without touching the
// configuration when the exec manager declines.
func (i *LaunchInterceptor) intercept(ctx context.Context, id runconfig.LaunchID, env *runconfig.LaunchEnvironment) (bool, error) {
	view := env.Configuration
	vars := view.EnvironmentVariables()
	desc := view.StartupDescriptor()

	resolved, err := script.Resolve(desc, func() (string, error) {
		model, err := i.serverModels.ServerModel(view)
		if err != nil {
			return "", err
		}
		return model.Home, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to resolve startup script: %w", err)
	}

	req := ports.PatchRequest{
		Product:    i.settings.Product,
		Executable: resolved.Command,
	}
	if env.Target != nil {
		req.WSLDistribution = env.Target.WSLDistribution
	}
	if v, ok := vars.Find(i.settings.ConfigEnvName); ok {
		req.ConfigFromEnv = v.Value
	}

	patch, err := i.execManager.ComputePatch(ctx, req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", runconfig.ErrPatchUnavailable, err)
	}
	if patch == nil {
		return false, nil
	}

	rewrite := i.settings.Platform.IsMac() && patch.PatchedPath != ""

	saved := snapshot.Snapshot{Environment: vars}
	if rewrite {
		saved.Startup = snapshot.CaptureStartup(desc)
	}
	i.snapshots.Put(id, saved)

	patchedVars := vars.Clone()
	for _, v := range i.additions(patch) {
		patchedVars = patchedVars.Set(v)
	}
	view.SetEnvironmentVariables(patchedVars)

	if rewrite {
		if err := i.rewriteStartup(view, resolved, patch); err != nil {
			return false, err
		}
	}
	return true, nil
}

// additions returns the patch environment plus the debugger port variables,
// the latter taking precedence.
func (i *LaunchInterceptor) additions(patch *ports.Patch) []runconfig.EnvironmentVariable {
	derived := []runconfig.EnvironmentVariable{
		{Name: DetectDebuggerPortEnv, Value: detectDebuggerPortValue},
		{Name: IgnoreDebuggerPortsEnv, Value: i.settings.ServerPort},
	}

	names := make([]string, 0, len(patch.Environment))
	for name := range patch.Environment {
		if name == DetectDebuggerPortEnv || name == IgnoreDebuggerPortsEnv {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]runconfig.EnvironmentVariable, 0, len(names)+len(derived))
	for _, name := range names {
		out = append(out, runconfig.EnvironmentVariable{Name: name, Value: patch.Environment[name]})
	}
	return append(out, derived...)
}

// rewriteStartup points the startup descriptor at the SIP-patched script.
// The rewritten script no longer receives the IDE's management options, so
// they are handed over through JAVA_OPTS instead.
func (i *LaunchInterceptor) rewriteStartup(view runconfig.View, resolved script.ResolvedCommand, patch *ports.Patch) error {
	model, err := i.serverModels.ServerModel(view)
	if err != nil {
		return fmt.Errorf("failed to reach server model: %w", err)
	}
	javaOptions, err := javaopts.EnvValue(i.settings.Platform, model, patch.Environment)
	if err != nil {
		return fmt.Errorf("failed to build %s: %w", javaopts.EnvName, err)
	}
	vmParameters := view.BuildVMParameters()

	view.UpdateStartupDescriptor(func(d *runconfig.StartupDescriptor) {
		d.UseDefault = false
		d.Script = patch.PatchedPath
		d.VMParameters = vmParameters
		if resolved.HasArgs {
			d.ProgramParameters = resolved.Args
		}
	})
	view.AddEnvironmentVariable(runconfig.EnvironmentVariable{Name: javaopts.EnvName, Value: javaOptions})
	return nil
}

func (i *LaunchInterceptor) emit(id runconfig.LaunchID, env *runconfig.LaunchEnvironment, phase ports.LifecyclePhase, detail string) {
	i.observerMu.RLock()
	observer := i.observer
	i.observerMu.RUnlock()
	if observer == nil {
		return
	}
	observer.OnLifecycleEvent(ports.LifecycleEvent{
		LaunchID:   id,
		Name:       env.Name,
		Phase:      phase,
		Detail:     detail,
		OccurredAt: time.Now(),
	})
}

var _ ports.ExecutionListener = (*LaunchInterceptor)(nil)
