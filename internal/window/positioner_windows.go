//go:build windows

package window

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32DLL = windows.NewLazySystemDLL("user32.dll")
	dwmapiDLL = windows.NewLazySystemDLL("dwmapi.dll")

	procGetWindowRect         = user32DLL.NewProc("GetWindowRect")
	procMonitorFromWindow     = user32DLL.NewProc("MonitorFromWindow")
	procGetMonitorInfoW       = user32DLL.NewProc("GetMonitorInfoW")
	procSetWindowPos          = user32DLL.NewProc("SetWindowPos")
	procIsZoomed              = user32DLL.NewProc("IsZoomed")
	procShowWindow            = user32DLL.NewProc("ShowWindow")
	procDwmGetWindowAttribute = dwmapiDLL.NewProc("DwmGetWindowAttribute")
)

const (
	monitorDefaultToNearest  = 0x00000002
	dwmwaExtendedFrameBounds = 9
	swRestore                = 9
	swpNoZOrder              = 0x0004
	swpNoActivate            = 0x0010
)

// winRect mirrors the Win32 RECT struct.
type winRect struct {
	left, top, right, bottom int32
}

func (r winRect) toRect() Rect {
	return Rect{Left: int(r.left), Top: int(r.top), Right: int(r.right), Bottom: int(r.bottom)}
}

// monitorInfo mirrors MONITORINFO from winuser.h.
type monitorInfo struct {
	cbSize    uint32
	rcMonitor winRect
	rcWork    winRect
	dwFlags   uint32
}

type foregroundPositioner struct{}

// NewPositioner returns a Positioner acting on the foreground window.
func NewPositioner() Positioner {
	return foregroundPositioner{}
}

func (foregroundPositioner) Move(pos Position, gap int) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return ErrNoForegroundWindow
	}

	// A maximized window ignores SetWindowPos until it is restored.
	if zoomed, _, _ := procIsZoomed.Call(uintptr(hwnd)); zoomed != 0 {
		procShowWindow.Call(uintptr(hwnd), swRestore)
	}

	outer, err := windowRect(hwnd)
	if err != nil {
		return err
	}
	visible, err := frameBounds(hwnd)
	if err != nil {
		slog.Debug("[window] frame bounds unavailable, ignoring invisible borders", "error", err)
		visible = outer
	}
	work, err := workArea(hwnd)
	if err != nil {
		return err
	}

	target := Place(work, pos, gap, BorderInsets(outer, visible))
	slog.Debug("[window] placing foreground window",
		"position", pos.String(),
		"work", work,
		"target", target,
	)
	r, _, callErr := procSetWindowPos.Call(
		uintptr(hwnd),
		0,
		uintptr(target.Left),
		uintptr(target.Top),
		uintptr(target.Width()),
		uintptr(target.Height()),
		swpNoZOrder|swpNoActivate,
	)
	if r == 0 {
		return fmt.Errorf("SetWindowPos: %w", callErr)
	}
	return nil
}

func windowRect(hwnd windows.HWND) (Rect, error) {
	var rect winRect
	r, _, callErr := procGetWindowRect.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&rect)))
	if r == 0 {
		return Rect{}, fmt.Errorf("GetWindowRect: %w", callErr)
	}
	return rect.toRect(), nil
}

func frameBounds(hwnd windows.HWND) (Rect, error) {
	if err := procDwmGetWindowAttribute.Find(); err != nil {
		return Rect{}, err
	}
	var rect winRect
	hr, _, _ := procDwmGetWindowAttribute.Call(
		uintptr(hwnd),
		dwmwaExtendedFrameBounds,
		uintptr(unsafe.Pointer(&rect)),
		unsafe.Sizeof(rect),
	)
	if hr != 0 {
		return Rect{}, fmt.Errorf("DwmGetWindowAttribute: HRESULT 0x%08X", uint32(hr))
	}
	return rect.toRect(), nil
}

func workArea(hwnd windows.HWND) (Rect, error) {
	monitor, _, _ := procMonitorFromWindow.Call(uintptr(hwnd), monitorDefaultToNearest)
	if monitor == 0 {
		return Rect{}, errors.New("MonitorFromWindow returned no monitor")
	}
	info := monitorInfo{cbSize: uint32(unsafe.Sizeof(monitorInfo{}))}
	r, _, callErr := procGetMonitorInfoW.Call(monitor, uintptr(unsafe.Pointer(&info)))
	if r == 0 {
		return Rect{}, fmt.Errorf("GetMonitorInfoW: %w", callErr)
	}
	return info.rcWork.toRect(), nil
}
