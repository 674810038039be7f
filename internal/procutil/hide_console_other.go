//go:build !windows

package procutil

// HideConsoleWindow is a no-op on non-Windows platforms.
func HideConsoleWindow() bool { return false }
