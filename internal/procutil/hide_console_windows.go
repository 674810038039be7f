//go:build windows

package procutil

import "syscall"

var (
	kernel32DLL           = syscall.NewLazyDLL("kernel32.dll")
	user32DLL             = syscall.NewLazyDLL("user32.dll")
	procGetConsoleWindow  = kernel32DLL.NewProc("GetConsoleWindow")
	procShowWindow        = user32DLL.NewProc("ShowWindow")
)

const swHide = 0

// HideConsoleWindow hides the console window attached to this process, if
// any. Used when the daemon is started in background mode so it leaves no
// visible window. Returns false when the process has no console.
func HideConsoleWindow() bool {
	hwnd, _, _ := procGetConsoleWindow.Call()
	if hwnd == 0 {
		return false
	}
	procShowWindow.Call(hwnd, uintptr(swHide))
	return true
}
