package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// SubprocessBackend runs an external CLI agent, feeding the prompt on
// stdin and treating a zero exit code as success.
type SubprocessBackend struct {
	name    string
	command string
	args    []string
}

// NewSubprocessBackend creates a backend for an arbitrary command line.
func NewSubprocessBackend(name, command string, args ...string) *SubprocessBackend {
	return &SubprocessBackend{name: name, command: command, args: args}
}

// NewClaudeBackend returns the preset for the claude CLI.
func NewClaudeBackend() *SubprocessBackend {
	return NewSubprocessBackend("claude", "claude", "-p", "--dangerously-skip-permissions")
}

// NewCodexBackend returns the preset for the codex CLI.
func NewCodexBackend() *SubprocessBackend {
	return NewSubprocessBackend("codex", "codex", "exec")
}

// Name returns the backend name.
func (b *SubprocessBackend) Name() string { return b.name }

// Available reports whether the command resolves on PATH.
func (b *SubprocessBackend) Available() bool {
	_, err := exec.LookPath(b.command)
	return err == nil
}

// Execute runs the command with the prompt on stdin.
func (b *SubprocessBackend) Execute(ctx context.Context, req Request) *Result {
	start := time.Now()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, b.command, b.args...)
	cmd.Dir = req.ProjectRoot
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Output:   stdout.String(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		result.Success = true

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Error = fmt.Sprintf("Agent timed out after %ds", int(req.Timeout.Seconds()))
		result.ExitCode = -1

	case errors.Is(err, exec.ErrNotFound):
		result.Error = "Agent command not found: " + b.command
		result.ExitCode = -1

	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		result.Error = msg
	}

	return result
}
