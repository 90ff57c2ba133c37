// Package execmanager computes launch patches by asking the mirrord binary.
package execmanager

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"mirrord.dev/launch/internal/application/ports"
)

// ProductEnv tells mirrord which IDE product requested the patch
const ProductEnv = "MIRRORD_IDE_PRODUCT"

// ErrNoPatch is returned when mirrord exits successfully without printing a patch
var ErrNoPatch = errors.New("mirrord printed no patch")

// Runner runs a command to completion and returns its standard output
type Runner interface {
	Run(ctx context.Context, name string, args []string, env []string) ([]byte, error)
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, name string, args []string, env []string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args []string, env []string) ([]byte, error) {
	return f(ctx, name, args, env)
}

// Options configures a BinaryExecManager
type Options struct {
	Binary   string
	Timeout  time.Duration
	Disabled bool
	Runner   Runner
}

// BinaryExecManager runs `mirrord ext` and decodes the patch it prints
type BinaryExecManager struct {
	binary   string
	timeout  time.Duration
	disabled bool
	runner   Runner
	logger   ports.LoggingGateway
}

// NewBinaryExecManager creates an exec manager backed by the mirrord binary
func NewBinaryExecManager(opts Options, logger ports.LoggingGateway) *BinaryExecManager {
	if opts.Binary == "" {
		opts.Binary = "mirrord"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.Runner == nil {
		opts.Runner = execRunner{}
	}
	return &BinaryExecManager{
		binary:   opts.Binary,
		timeout:  opts.Timeout,
		disabled: opts.Disabled,
		runner:   opts.Runner,
		logger:   logger,
	}
}

// ComputePatch returns nil without running anything when the manager is
// disabled. WSL launches run mirrord inside the target distribution.
func (m *BinaryExecManager) ComputePatch(ctx context.Context, req ports.PatchRequest) (*ports.Patch, error) {
	if m.disabled {
		m.logger.Log(ports.LogLevelDebug, "mirrord is disabled, launch left unpatched", nil)
		return nil, nil
	}
	if req.Executable == "" {
		return nil, fmt.Errorf("executable is required")
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	name, args := m.command(req)
	env := []string{}
	if req.Product != "" {
		env = append(env, ProductEnv+"="+req.Product)
	}

	m.logger.Log(ports.LogLevelDebug, "computing launch patch", map[string]interface{}{
		"command":    name + " " + strings.Join(args, " "),
		"executable": req.Executable,
	})

	out, err := m.runner.Run(ctx, name, args, env)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("mirrord ext timed out after %s: %w", m.timeout, err)
		}
		return nil, fmt.Errorf("mirrord ext failed: %w", err)
	}

	return DecodePatch(out)
}

func (m *BinaryExecManager) command(req ports.PatchRequest) (string, []string) {
	args := []string{"ext", "-e", req.Executable}
	if req.ConfigFromEnv != "" {
		args = append(args, "-f", req.ConfigFromEnv)
	}
	if req.WSLDistribution == "" {
		return m.binary, args
	}
	return "wsl", append([]string{"-d", req.WSLDistribution, "--", m.binary}, args...)
}

// patchOutput is the document mirrord prints once the patch is ready
type patchOutput struct {
	Environment map[string]string `json:"environment"`
	PatchedPath *string           `json:"patched_path"`
}

// DecodePatch extracts the patch from mirrord's output. Progress lines may
// come first, so the last line holding an environment object wins.
func DecodePatch(out []byte) (*ports.Patch, error) {
	var found *patchOutput

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var candidate patchOutput
		if err := json.Unmarshal(line, &candidate); err != nil {
			continue
		}
		if candidate.Environment != nil {
			found = &candidate
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mirrord output: %w", err)
	}
	if found == nil {
		return nil, ErrNoPatch
	}

	patch := &ports.Patch{Environment: found.Environment}
	if found.PatchedPath != nil {
		patch.PatchedPath = *found.PatchedPath
	}
	return patch, nil
}

// execRunner runs commands with os/exec, inheriting the current environment
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

var _ ports.ExecManager = (*BinaryExecManager)(nil)
