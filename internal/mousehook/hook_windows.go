//go:build windows

package mousehook

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
	procTranslateMessage    = user32DLL.NewProc("TranslateMessage")
	procDispatchMessageW    = user32DLL.NewProc("DispatchMessageW")
	procPostThreadMessageW  = user32DLL.NewProc("PostThreadMessageW")
	procPeekMessageW        = user32DLL.NewProc("PeekMessageW")
	procGetCurrentThreadID  = kernelDLL.NewProc("GetCurrentThreadId")
)

const (
	whMouseLL    = 14
	wmMouseWheel = 0x020A
	wmQuit       = 0x0012
	pmNoRemove   = 0x0000
	hcAction     = 0
)

// point mirrors the Win32 POINT struct.
type point struct {
	x int32
	y int32
}

// mouseHookInfo mirrors the Win32 MSLLHOOKSTRUCT. Field order and types
// must match the binary layout; the wheel delta lives in the high word of
// mouseData as a signed 16-bit value.
type mouseHookInfo struct {
	pt          point
	mouseData   uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

// winMsg mirrors the Win32 MSG struct (tagMSG from winuser.h).
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

// installedHandler holds the handler for the process-wide hook procedure.
// WH_MOUSE_LL is a per-process resource: only one hook may be active, and
// the Win32 callback (created once, below) dispatches through this pointer.
var installedHandler atomic.Pointer[Handler]

// wheelProc is the LowLevelMouseProc passed to SetWindowsHookExW.
// syscall.NewCallback allocations are never released, so the callback is
// created once for the process and shared across install cycles.
var wheelProc = sync.OnceValue(func() uintptr {
	return syscall.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
		if int32(nCode) == hcAction && wParam == wmMouseWheel {
			info := (*mouseHookInfo)(unsafe.Pointer(lParam))
			delta := int(int16(info.mouseData >> 16))
			if h := installedHandler.Load(); h != nil && (*h).OnWheel(delta) {
				// Non-zero swallows the event: it never reaches the next
				// hook in the chain or the window under the cursor.
				return 1
			}
		}
		next, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
		return next
	})
})

// activeLoop holds the state of an installed hook's message loop.
type activeLoop struct {
	threadID uint32
	doneCh   chan struct{}
}

// Hook manages one global mouse-wheel hook registration.
type Hook struct {
	handler Handler

	mu     sync.Mutex
	active *activeLoop // nil when uninstalled
}

// New creates an uninstalled hook that will dispatch wheel notches to handler.
func New(handler Handler) *Hook {
	return &Hook{handler: handler}
}

// Installed reports whether the hook is currently registered.
func (h *Hook) Installed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active != nil
}

// Install registers the low-level hook on a dedicated message-loop thread.
// Registration failure is returned to the caller and is fatal to the
// feature; there is no retry.
func (h *Hook) Install() error {
	if h.handler == nil {
		return errors.New("wheel handler is required")
	}
	if err := user32DLL.Load(); err != nil {
		return fmt.Errorf("user32.dll is unavailable: %w", err)
	}
	if err := kernelDLL.Load(); err != nil {
		return fmt.Errorf("kernel32.dll is unavailable: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active != nil {
		return ErrAlreadyInstalled
	}
	if !installedHandler.CompareAndSwap(nil, &h.handler) {
		return ErrAlreadyInstalled
	}

	readyCh := make(chan loopReady, 1)
	doneCh := make(chan struct{})

	go runHookLoop(readyCh, doneCh)

	ready := <-readyCh
	if ready.err != nil {
		installedHandler.Store(nil)
		return fmt.Errorf("install mouse hook: %w", ready.err)
	}
	if ready.threadID == 0 {
		installedHandler.Store(nil)
		return errors.New("hook loop started but returned invalid thread ID 0")
	}

	h.active = &activeLoop{threadID: ready.threadID, doneCh: doneCh}
	return nil
}

// Uninstall unregisters the hook. Safe to call when not installed. The call
// waits (bounded) for the message loop to exit, which guarantees no callback
// is in flight once it returns.
func (h *Hook) Uninstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active == nil {
		return nil
	}
	loop := h.active
	h.active = nil

	stopErr := postQuit(loop.threadID)

	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-loop.doneCh:
		// Loop exited; the hook procedure can no longer be entered.
	case <-timer.C:
		slog.Warn("[mousehook] message loop stop timed out, thread may leak",
			"threadID", loop.threadID)
		stopErr = errors.Join(stopErr, errors.New("hook message loop stop timed out"))
	}

	installedHandler.Store(nil)
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

	// Force creation of the thread message queue so PostThreadMessageW in
	// Uninstall can deliver WM_QUIT. The return value only signals whether
	// a message was available, not success.
	var qmsg winMsg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)

	hookHandle, _, hookErr := procSetWindowsHookExW.Call(
		uintptr(whMouseLL),
		wheelProc(),
		0,
		0,
	)
	if hookHandle == 0 {
		if hookErr == syscall.Errno(0) {
			hookErr = errors.New("SetWindowsHookExW failed")
		}
		readyCh <- loopReady{err: hookErr}
		return
	}
	defer func() {
		res, _, unhookErr := procUnhookWindowsHookEx.Call(hookHandle)
		if res == 0 {
			slog.Error("[mousehook] UnhookWindowsHookEx failed on loop exit",
				"error", unhookErr)
		}
	}()

	readyCh <- loopReady{threadID: threadID}

	for {
		var msg winMsg
		ret, _, lastErr := procGetMessageW.Call(
			uintptr(unsafe.Pointer(&msg)),
			0,
			0,
			0,
		)
		switch int32(ret) {
		case -1:
			slog.Warn("[mousehook] GetMessageW returned error, exiting loop", "error", lastErr)
			return
		case 0:
			// WM_QUIT received, normal shutdown path.
			slog.Debug("[mousehook] message loop received WM_QUIT, exiting")
			return
		}

		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
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
