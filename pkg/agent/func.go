package agent

import "context"

// FuncBackend wraps an in-process function as a backend. Useful for
// tests and for callers embedding featurectl as a library.
type FuncBackend struct {
	name string
	fn   func(ctx context.Context, req Request) *Result
}

// NewFuncBackend creates a backend from a function.
func NewFuncBackend(name string, fn func(ctx context.Context, req Request) *Result) *FuncBackend {
	return &FuncBackend{name: name, fn: fn}
}

// Name returns the backend name.
func (b *FuncBackend) Name() string { return b.name }

// Available always returns true.
func (b *FuncBackend) Available() bool { return true }

// Execute calls the wrapped function.
func (b *FuncBackend) Execute(ctx context.Context, req Request) *Result {
	return b.fn(ctx, req)
}
