package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// staleLockAge is how old a lock file must be before it is presumed
// abandoned and broken automatically.
const staleLockAge = 10 * time.Minute

// ConflictError reports that the state is held by another operation.
type ConflictError struct {
	Holder string // lock file path or remote lock identifier
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("state is locked by another operation (%s). %s", e.Holder, e.Detail)
}

// Lock acquires a file lock on the state to prevent concurrent
// modifications.
func (m *Manager) Lock() error {
	lockPath := m.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
		} else {
			return &ConflictError{
				Holder: lockPath,
				Detail: "If no other operation is running, remove the lock file manually",
			}
		}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	return nil
}

// Unlock releases the state lock.
func (m *Manager) Unlock() error {
	if err := os.Remove(m.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *Manager) lockPath() string {
	return m.path + ".lock"
}
