//go:build windows

package singleinstance

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// Global\ makes the mutex visible across terminal-server sessions.
const mutexNamePrefix = `Global\`

// Lock owns a named mutex. Windows releases it when the process exits.
type Lock struct {
	handle windows.Handle
}

// TryLock creates and owns the mutex called name. It returns
// ErrAlreadyRunning when the mutex already exists.
func TryLock(name string) (*Lock, error) {
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("lock name %q: %w", name, err)
	}
	h, err := windows.CreateMutex(nil, true, namePtr)
	switch {
	case err == nil:
		return &Lock{handle: h}, nil
	case errors.Is(err, windows.ERROR_ALREADY_EXISTS):
		err = ErrAlreadyRunning
	default:
		err = fmt.Errorf("create mutex %q: %w", name, err)
	}
	// CreateMutex returns a handle to the existing mutex alongside
	// ERROR_ALREADY_EXISTS.
	if h != 0 {
		_ = windows.CloseHandle(h)
	}
	return nil, err
}

// Release closes the mutex handle. It is a no-op on nil or released locks.
func (l *Lock) Release() error {
	if l == nil || l.handle == 0 {
		return nil
	}
	h := l.handle
	l.handle = 0
	return windows.CloseHandle(h)
}
