package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LocalBackend stores state in a JSON file on disk, with a sidecar
// ".lock" file providing advisory locking.
type LocalBackend struct {
	path string
}

// NewLocalBackend creates a backend writing to the given file path.
func NewLocalBackend(path string) *LocalBackend {
	return &LocalBackend{path: path}
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Read returns the state file contents, or nil if the file does not exist.
func (b *LocalBackend) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	return data, nil
}

// Write writes the state atomically via a temp file and rename.
func (b *LocalBackend) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".featurectl-state-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// Exists reports whether the state file is present.
func (b *LocalBackend) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(b.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *LocalBackend) lockPath() string {
	return b.path + ".lock"
}

// Lock creates the lock file exclusively, failing with *LockError if it
// already exists.
func (b *LocalBackend) Lock(_ context.Context, info *LockInfo) error {
	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lock info: %w", err)
	}

	f, err := os.OpenFile(b.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if os.IsExist(err) {
		holder, readErr := b.readLock()
		if readErr != nil {
			return fmt.Errorf("state lock file exists but is unreadable: %w", readErr)
		}
		return &LockError{Holder: holder}
	}
	if err != nil {
		return fmt.Errorf("creating lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

// Unlock removes the lock file if lockID matches the holder.
func (b *LocalBackend) Unlock(_ context.Context, lockID string) error {
	holder, err := b.readLock()
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if holder.ID != lockID {
		return fmt.Errorf("lock ID mismatch: held by %s with ID %s", holder.Who, holder.ID)
	}
	return os.Remove(b.lockPath())
}

// ForceUnlock removes the lock file regardless of holder. The lockID is
// still checked so a stale ID from the error message is required.
func (b *LocalBackend) ForceUnlock(_ context.Context, lockID string) error {
	holder, err := b.readLock()
	if os.IsNotExist(err) {
		return fmt.Errorf("state is not locked")
	}
	if err != nil {
		return err
	}
	if holder.ID != lockID {
		return fmt.Errorf("lock ID %q does not match current lock %q", lockID, holder.ID)
	}
	return os.Remove(b.lockPath())
}

// SupportsLocking returns true.
func (b *LocalBackend) SupportsLocking() bool { return true }

func (b *LocalBackend) readLock() (*LockInfo, error) {
	data, err := os.ReadFile(b.lockPath())
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding lock file: %w", err)
	}
	return &info, nil
}
