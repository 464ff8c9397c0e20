//go:build !windows

package singleinstance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const mutexNamePrefix = ""

// lockDirFn is a test seam for the lock file directory.
var lockDirFn = os.TempDir

// Lock holds an exclusive flock on <tmp>/<name>.lock. The kernel drops the
// lock when the owning process exits, so a stale file never blocks start-up.
type Lock struct {
	file *os.File
}

// TryLock attempts to take the lock without waiting.
// Returns ErrAlreadyRunning if another holder owns it.
func TryLock(name string) (*Lock, error) {
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	path := filepath.Join(lockDirFn(), name+".lock")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &Lock{file: file}, nil
}

// Release drops the lock. Safe to call on nil receiver and idempotent.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
