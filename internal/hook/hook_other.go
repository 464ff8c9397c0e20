//go:build !windows

package hook

// unsupportedBackend is the default on platforms without a native hook.
// Callers can still supply a backend through NewWithBackend.
type unsupportedBackend struct{}

func defaultBackend() Backend { return unsupportedBackend{} }

func (unsupportedBackend) Install(DeliverFunc) error { return ErrUnsupported }

func (unsupportedBackend) Uninstall() error { return nil }
