//go:build windows

package hook

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"
)

var (
	user32DLL = syscall.NewLazyDLL("user32.dll")
	kernelDLL = syscall.NewLazyDLL("kernel32.dll")

	procSetWindowsHookExW   = user32DLL.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32DLL.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32DLL.NewProc("CallNextHookEx")
	procGetMessageW         = user32DLL.NewProc("GetMessageW")
	procPostThreadMessageW  = user32DLL.NewProc("PostThreadMessageW")
	procPeekMessageW        = user32DLL.NewProc("PeekMessageW")
	procGetModuleHandleW    = kernelDLL.NewProc("GetModuleHandleW")
	procGetCurrentThreadID  = kernelDLL.NewProc("GetCurrentThreadId")
)

const (
	whKeyboardLL = 13
	hcAction     = 0

	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105
	wmQuit       = 0x0012
	pmNoRemove   = 0x0000

	stopTimeout = 2 * time.Second
)

// kbdLLHookStruct mirrors KBDLLHOOKSTRUCT from winuser.h.
type kbdLLHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type point struct {
	x int32
	y int32
}

// winMsg mirrors the Win32 MSG struct. Layout must match on 32- and 64-bit.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32
}

type loopReady struct {
	threadID uint32
	err      error
}

// The OS calls one C-callable trampoline for the whole process. Callbacks made
// by syscall.NewCallback are never freed, so it is created once and routed to
// whichever backend currently owns the slot.
var (
	activeDeliver atomic.Pointer[DeliverFunc]
	hookCallback  = sync.OnceValue(func() uintptr {
		return syscall.NewCallback(lowLevelKeyboardProc)
	})
)

func lowLevelKeyboardProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) == hcAction {
		if deliver := activeDeliver.Load(); deliver != nil {
			kb := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
			var block bool
			switch wParam {
			case wmKeyDown, wmSysKeyDown:
				block = (*deliver)(int(kb.vkCode), true)
			case wmKeyUp, wmSysKeyUp:
				block = (*deliver)(int(kb.vkCode), false)
			}
			if block {
				return 1
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}

type activeLoop struct {
	threadID uint32
	doneCh   chan struct{}
	deliver  *DeliverFunc
}

// lowLevelBackend installs a WH_KEYBOARD_LL hook on a dedicated OS thread
// that pumps its own message queue.
type lowLevelBackend struct {
	mu     sync.Mutex
	active *activeLoop
}

func defaultBackend() Backend {
	return &lowLevelBackend{}
}

func (b *lowLevelBackend) Install(deliver DeliverFunc) error {
	if deliver == nil {
		return errors.New("deliver callback is required")
	}
	if err := user32DLL.Load(); err != nil {
		return fmt.Errorf("user32.dll is unavailable: %w", err)
	}
	if err := kernelDLL.Load(); err != nil {
		return fmt.Errorf("kernel32.dll is unavailable: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active != nil {
		return ErrAlreadyInstalled
	}

	slot := &deliver
	if !activeDeliver.CompareAndSwap(nil, slot) {
		return ErrAlreadyInstalled
	}

	readyCh := make(chan loopReady, 1)
	doneCh := make(chan struct{})
	go runHookLoop(readyCh, doneCh)

	ready := <-readyCh
	if ready.err != nil {
		activeDeliver.CompareAndSwap(slot, nil)
		return fmt.Errorf("SetWindowsHookExW failed: %w", ready.err)
	}
	b.active = &activeLoop{threadID: ready.threadID, doneCh: doneCh, deliver: slot}
	return nil
}

func (b *lowLevelBackend) Uninstall() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return nil
	}
	loop := b.active
	b.active = nil
	// Release the process-wide slot once the loop has exited.
	defer activeDeliver.CompareAndSwap(loop.deliver, nil)

	stopErr := postQuit(loop.threadID)

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-loop.doneCh:
	case <-timer.C:
		slog.Warn("[hook] DEBUG message loop stop timed out, goroutine/thread may leak",
			"threadID", loop.threadID)
		stopErr = errors.Join(stopErr, fmt.Errorf("hook message loop stop timed out (threadID=%d)", loop.threadID))
	}
	return stopErr
}

func runHookLoop(readyCh chan<- loopReady, doneCh chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(doneCh)

	threadID, err := getCurrentThreadID()
	if err != nil {
		readyCh <- loopReady{err: err}
		return
	}

	// Creates the thread message queue so PostThreadMessageW can deliver WM_QUIT.
	var qmsg winMsg
	ret, _, peekErr := procPeekMessageW.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)
	if ret == 0 && peekErr != syscall.Errno(0) {
		slog.Warn("[hook] DEBUG PeekMessageW for queue init returned error", "error", peekErr)
	}

	module, _, _ := procGetModuleHandleW.Call(0)
	handle, _, hookErr := procSetWindowsHookExW.Call(whKeyboardLL, hookCallback(), module, 0)
	if handle == 0 {
		if hookErr == syscall.Errno(0) {
			hookErr = errors.New("SetWindowsHookExW returned NULL")
		}
		readyCh <- loopReady{err: hookErr}
		return
	}
	defer func() {
		if res, _, err := procUnhookWindowsHookEx.Call(handle); res == 0 {
			slog.Error("[hook] DEBUG UnhookWindowsHookEx on loop exit failed", "error", err)
		}
	}()

	readyCh <- loopReady{threadID: threadID}

	// Low-level hook callbacks are dispatched while this thread waits in GetMessageW.
	for {
		var msg winMsg
		ret, _, lastErr := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			slog.Warn("[hook] DEBUG GetMessageW returned error, exiting loop", "error", lastErr)
			return
		case 0:
			slog.Debug("[hook] message loop received WM_QUIT")
			return
		}
	}
}

func postQuit(threadID uint32) error {
	if threadID == 0 {
		return errors.New("cannot post WM_QUIT: threadID is 0")
	}
	res, _, err := procPostThreadMessageW.Call(uintptr(threadID), wmQuit, 0, 0)
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("PostThreadMessageW failed")
	}
	return err
}

func getCurrentThreadID() (uint32, error) {
	tid, _, err := procGetCurrentThreadID.Call()
	if tid == 0 {
		return 0, fmt.Errorf("GetCurrentThreadId returned 0: %w", err)
	}
	return uint32(tid), nil
}
