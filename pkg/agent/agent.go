package agent

import (
	"context"
	"time"
)

// Request carries everything a backend needs for one invocation.
type Request struct {
	// Prompt is the full task description fed to the agent.
	Prompt string

	// ProjectRoot is the working directory the agent operates in.
	ProjectRoot string

	// Timeout bounds the invocation. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Result reports what one agent invocation did. Failure is a value,
// not an error: the apply loop records it and moves on.
type Result struct {
	Success       bool
	FilesCreated  []string
	FilesModified []string
	Output        string
	Error         string
	ExitCode      int
	Duration      time.Duration
}

// AllFiles returns created and modified files as one list.
func (r *Result) AllFiles() []string {
	out := make([]string, 0, len(r.FilesCreated)+len(r.FilesModified))
	out = append(out, r.FilesCreated...)
	out = append(out, r.FilesModified...)
	return out
}

// Backend is a coding agent that can be asked to implement a resource.
type Backend interface {
	// Name identifies the backend in logs and chain error messages.
	Name() string

	// Execute runs the agent with the given request.
	Execute(ctx context.Context, req Request) *Result

	// Available reports whether the backend can run right now, e.g.
	// whether the underlying CLI binary is installed.
	Available() bool
}
