// Package singleinstance keeps one background instance per user.
package singleinstance

import (
	"errors"

	"shiftygrid/internal/userutil"
)

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// DefaultMutexName returns the per-user lock name. The suffix matches the one
// ipc.DefaultPipeName uses.
func DefaultMutexName() string {
	return mutexNamePrefix + "shiftygrid-" + userutil.Suffix()
}
