package ports

import (
	"context"
	"time"

	"mirrord.dev/launch/internal/core/runconfig"
)

// ExecutionListener receives the launch lifecycle of the host. Implementations
// must never fail the launch; they have no error returns for that reason.
type ExecutionListener interface {
	// ProcessStartScheduled is called before the host builds the process
	ProcessStartScheduled(ctx context.Context, id runconfig.LaunchID, env *runconfig.LaunchEnvironment)

	// ProcessNotStarted is called when the start attempt failed
	ProcessNotStarted(id runconfig.LaunchID, env *runconfig.LaunchEnvironment)

	// ProcessStarted is called once the process is running
	ProcessStarted(id runconfig.LaunchID, env *runconfig.LaunchEnvironment, handle ProcessHandle)
}

// ProcessHandle is the host's handle on a started process
type ProcessHandle interface {
	PID() int
}

// PatchRequest asks the exec manager how to launch an executable with the
// mirrord layer injected.
type PatchRequest struct {
	Product         string
	Executable      string
	WSLDistribution string
	ConfigFromEnv   string
}

// Patch is the exec manager's answer. PatchedPath is set only when the
// platform requires launching a substitute executable.
type Patch struct {
	Environment map[string]string `json:"environment"`
	PatchedPath string            `json:"patched_path,omitempty"`
}

// ExecManager computes launch patches. A nil patch with a nil error means
// mirrord declined, for instance because it is disabled.
type ExecManager interface {
	ComputePatch(ctx context.Context, req PatchRequest) (*Patch, error)
}

// ServerModelResolver reaches the server model behind a run configuration
// view. It fails with runconfig.ErrReflectiveAccess when the host does not
// expose one.
type ServerModelResolver interface {
	ServerModel(view runconfig.View) (runconfig.ServerModel, error)
}

// LifecyclePhase is a step of one launch attempt
type LifecyclePhase string

const (
	PhaseScheduled  LifecyclePhase = "scheduled"
	PhaseSkipped    LifecyclePhase = "skipped"
	PhasePatched    LifecyclePhase = "patched"
	PhaseFailed     LifecyclePhase = "failed"
	PhaseStarted    LifecyclePhase = "started"
	PhaseNotStarted LifecyclePhase = "not_started"
	PhaseRestored   LifecyclePhase = "restored"
)

// LifecycleEvent reports a phase change of one launch attempt
type LifecycleEvent struct {
	LaunchID   runconfig.LaunchID
	Name       string
	Phase      LifecyclePhase
	Detail     string
	OccurredAt time.Time
}

// LifecycleObserver receives lifecycle events. It is called synchronously on
// the host's callback goroutine and must not block.
type LifecycleObserver interface {
	OnLifecycleEvent(event LifecycleEvent)
}
