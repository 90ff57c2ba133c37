package ports

import (
	"context"
	"io"
)

// Command is a fully resolved process invocation
type Command struct {
	Executable string
	Args       []string
	// Env is the complete environment in NAME=value form
	Env    []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// ProcessExecutor starts processes for the local host
type ProcessExecutor interface {
	Start(ctx context.Context, cmd Command) (Process, error)
}

// Process is a started process
type Process interface {
	ProcessHandle
	Wait() error
	Kill() error
	IsRunning() bool
	ExitCode() int
}
