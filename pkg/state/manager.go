package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/featurectl/featurectl/pkg/engine"
)

// Manager loads and saves engine state through a backend and provides
// the manual state-editing operations the CLI exposes.
type Manager struct {
	backend Backend
}

// NewManager wraps a backend.
func NewManager(backend Backend) *Manager {
	return &Manager{backend: backend}
}

// Backend returns the underlying backend.
func (m *Manager) Backend() Backend { return m.backend }

// Load reads and decodes state. A missing document yields a fresh
// empty state rather than an error.
func (m *Manager) Load(ctx context.Context) (*engine.State, error) {
	data, err := m.backend.Read(ctx)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return engine.NewState(), nil
	}

	var st engine.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	if st.Resources == nil {
		st.Resources = make(map[string]*engine.Resource)
	}
	if st.Version == "" {
		st.Version = "1"
	}
	return &st, nil
}

// Save encodes and writes state.
func (m *Manager) Save(ctx context.Context, st *engine.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	return m.backend.Write(ctx, data)
}

// Lock acquires the state lock, if the backend supports locking.
func (m *Manager) Lock(ctx context.Context, info *LockInfo) error {
	if !m.backend.SupportsLocking() {
		return nil
	}
	return m.backend.Lock(ctx, info)
}

// Unlock releases the state lock.
func (m *Manager) Unlock(ctx context.Context, lockID string) error {
	if !m.backend.SupportsLocking() {
		return nil
	}
	return m.backend.Unlock(ctx, lockID)
}

// ForceUnlock removes the state lock regardless of holder.
func (m *Manager) ForceUnlock(ctx context.Context, lockID string) error {
	return m.backend.ForceUnlock(ctx, lockID)
}

// MarkCreated records a resource as implemented, as if an apply had
// created it. Used by "featurectl mark done".
func (m *Manager) MarkCreated(ctx context.Context, address string, files, tests []string, lock bool) error {
	resourceType, name, err := engine.SplitAddress(address)
	if err != nil {
		return err
	}

	st, err := m.Load(ctx)
	if err != nil {
		return err
	}

	r := st.Get(address)
	if r == nil {
		r = &engine.Resource{
			Type:       resourceType,
			Name:       name,
			Attributes: make(map[string]any),
		}
	}
	r.Status = engine.StatusImplemented
	if len(files) > 0 {
		r.Files = files
	}
	if len(tests) > 0 {
		r.Tests = tests
	}
	r.Source = "manual"
	r.Locked = lock
	st.Set(r)

	return m.Save(ctx, st)
}

// MarkPartial records a resource as partially implemented with a reason.
func (m *Manager) MarkPartial(ctx context.Context, address, reason string) error {
	return m.markWithReason(ctx, address, engine.StatusPartial, "partial_reason", reason)
}

// MarkBroken records a resource as broken with a reason.
func (m *Manager) MarkBroken(ctx context.Context, address, reason string) error {
	return m.markWithReason(ctx, address, engine.StatusBroken, "broken_reason", reason)
}

func (m *Manager) markWithReason(ctx context.Context, address string, status engine.ResourceStatus, reasonKey, reason string) error {
	resourceType, name, err := engine.SplitAddress(address)
	if err != nil {
		return err
	}

	st, err := m.Load(ctx)
	if err != nil {
		return err
	}

	r := st.Get(address)
	if r == nil {
		r = &engine.Resource{
			Type:       resourceType,
			Name:       name,
			Attributes: make(map[string]any),
		}
	}
	if r.Attributes == nil {
		r.Attributes = make(map[string]any)
	}
	r.Status = status
	if reason != "" {
		r.Attributes[reasonKey] = reason
	}
	r.Source = "manual"
	st.Set(r)

	return m.Save(ctx, st)
}

// Remove deletes a resource from state. Returns an error if the
// address is not tracked.
func (m *Manager) Remove(ctx context.Context, address string) error {
	st, err := m.Load(ctx)
	if err != nil {
		return err
	}
	if st.Remove(address) == nil {
		return engine.NewPermanentError(
			fmt.Sprintf("resource not in state: %s", address), nil).
			WithResource(address).
			WithCode(engine.ErrCodeNotFound)
	}
	return m.Save(ctx, st)
}
