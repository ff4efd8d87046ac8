package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danjacques/gofslock/fslock"
)

// DefaultLockPath is where the host lock lives unless configured otherwise.
const DefaultLockPath = "/var/lock/converge.lock"

// ErrConcurrentRun is returned when another run already holds the host lock.
var ErrConcurrentRun = errors.New("another converge run is in progress")

// withHostLock runs fn while holding the exclusive lock at path. An empty
// path runs fn without locking.
func withHostLock(path string, fn func() error) error {
	if path == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	var fnErr error
	err := fslock.With(path, func() error {
		fnErr = fn()
		return nil
	})
	switch {
	case errors.Is(err, fslock.ErrLockHeld):
		return fmt.Errorf("%w (lock %s)", ErrConcurrentRun, path)
	case err != nil:
		return fmt.Errorf("acquire host lock %s: %w", path, err)
	}
	return fnErr
}
