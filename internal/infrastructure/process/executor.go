package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"mirrord.dev/launch/internal/application/ports"
)

// Executor implements the ProcessExecutor interface with os/exec
type Executor struct {
	workDir string
}

// NewExecutor creates a new process executor
func NewExecutor() *Executor {
	return &Executor{}
}

// NewExecutorWithWorkDir creates an executor starting processes in workDir
// unless the command names its own directory.
func NewExecutorWithWorkDir(workDir string) *Executor {
	return &Executor{workDir: workDir}
}

// Start starts cmd and returns a handle once the process is running
func (e *Executor) Start(ctx context.Context, cmd ports.Command) (ports.Process, error) {
	if cmd.Executable == "" {
		return nil, fmt.Errorf("executable is required")
	}

	execCmd := exec.CommandContext(ctx, cmd.Executable, cmd.Args...)
	if cmd.Dir != "" {
		execCmd.Dir = cmd.Dir
	} else if e.workDir != "" {
		execCmd.Dir = e.workDir
	}
	execCmd.Env = cmd.Env
	execCmd.Stdout = orDiscard(cmd.Stdout)
	execCmd.Stderr = orDiscard(cmd.Stderr)

	if err := execCmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	p := &processImpl{
		cmd:     execCmd,
		running: true,
		done:    make(chan struct{}),
	}
	go p.monitor()

	return p, nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// processImpl implements the Process interface
type processImpl struct {
	cmd *exec.Cmd

	mu       sync.RWMutex
	running  bool
	exitCode int
	done     chan struct{}
	waitErr  error
}

// PID returns the process ID
func (p *processImpl) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits
func (p *processImpl) Wait() error {
	<-p.done
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.waitErr
}

func (p *processImpl) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return fmt.Errorf("process not running")
	}
	return p.cmd.Process.Kill()
}

func (p *processImpl) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *processImpl) ExitCode() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode
}

func (p *processImpl) monitor() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.running = false
	p.waitErr = err

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.exitCode = 0
	case errors.As(err, &exitErr):
		p.exitCode = exitErr.ExitCode()
	default:
		p.exitCode = -1
	}
	p.mu.Unlock()

	close(p.done)
}

var _ ports.ProcessExecutor = (*Executor)(nil)
