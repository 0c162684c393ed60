package state

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/google/uuid"
)

// LockInfo describes who holds the state lock.
type LockInfo struct {
	// ID is a unique lock identifier, required for force-unlock.
	ID string `json:"id"`

	// Who identifies the holder, typically "user@host".
	Who string `json:"who"`

	// Created is when the lock was taken.
	Created time.Time `json:"created"`

	// Info is an optional free-form note about the operation.
	Info string `json:"info,omitempty"`
}

// NewLockInfo returns a lock record for the current user and host.
func NewLockInfo(info string) *LockInfo {
	who := "unknown"
	if u, err := user.Current(); err == nil {
		who = u.Username
	}
	if host, err := os.Hostname(); err == nil {
		who = who + "@" + host
	}
	return &LockInfo{
		ID:      uuid.New().String(),
		Who:     who,
		Created: time.Now().UTC(),
		Info:    info,
	}
}

// LockError is returned when the state is already locked by someone else.
type LockError struct {
	Holder *LockInfo
}

func (e *LockError) Error() string {
	return fmt.Sprintf(
		"state is locked by %s (lock ID: %s, since: %s)\n"+
			"Use 'featurectl force-unlock %s' to remove a stale lock.",
		e.Holder.Who, e.Holder.ID, e.Holder.Created.Format(time.RFC3339), e.Holder.ID,
	)
}

// Backend stores and retrieves the serialized state document.
//
// Read returns (nil, nil) when no state has been written yet. Backends
// that do not support locking implement Lock and Unlock as no-ops and
// report false from SupportsLocking.
type Backend interface {
	// Type returns the backend identifier ("local", "sqlite").
	Type() string

	// Read returns the raw state document, or nil if none exists.
	Read(ctx context.Context) ([]byte, error)

	// Write persists the raw state document.
	Write(ctx context.Context, data []byte) error

	// Exists reports whether a state document has been written.
	Exists(ctx context.Context) (bool, error)

	// Lock acquires the advisory lock, returning *LockError if held.
	Lock(ctx context.Context, info *LockInfo) error

	// Unlock releases the lock identified by lockID.
	Unlock(ctx context.Context, lockID string) error

	// ForceUnlock removes the lock regardless of holder.
	ForceUnlock(ctx context.Context, lockID string) error

	// SupportsLocking reports whether Lock is meaningful.
	SupportsLocking() bool
}

// Config selects and configures a state backend.
type Config struct {
	// Type is the backend type: "local" (default) or "sqlite".
	Type string `yaml:"type" validate:"omitempty,oneof=local sqlite"`

	// Path is the state file path (local) or database path (sqlite).
	Path string `yaml:"path"`
}

// NewBackend constructs a backend from configuration. Unset fields get
// local-file defaults.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	backendType := cfg.Type
	if backendType == "" {
		backendType = "local"
	}

	switch backendType {
	case "local":
		path := cfg.Path
		if path == "" {
			path = "featurectl.state.json"
		}
		return NewLocalBackend(path), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "featurectl.state.db"
		}
		backend, err := NewSQLiteBackend(path)
		if err != nil {
			return nil, err
		}
		if err := backend.Init(ctx); err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown state backend type: %q", backendType)
	}
}
