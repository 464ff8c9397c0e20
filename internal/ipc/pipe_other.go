//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"
)

// socketDirFn is a test seam for the socket directory.
var socketDirFn = os.TempDir

func pipeAddress(name string) string {
	return filepath.Join(socketDirFn(), name+".sock")
}

func dialPipe(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", address, timeout)
}

// listenPipe listens on a unix socket readable only by the current user.
// A stale socket left by a crashed instance is removed first.
func listenPipe(address string) (net.Listener, error) {
	if info, err := os.Lstat(address); err == nil {
		if info.Mode().Type() != fs.ModeSocket {
			return nil, fmt.Errorf("%s exists and is not a socket", address)
		}
		if conn, dialErr := net.DialTimeout("unix", address, time.Second); dialErr == nil {
			conn.Close()
			return nil, fmt.Errorf("%s is already in use", address)
		}
		slog.Debug("[ipc] removing stale socket", "address", address)
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", address)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(address, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return listener, nil
}
