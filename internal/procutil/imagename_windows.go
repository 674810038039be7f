//go:build windows

package procutil

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// ImageBaseName resolves a process id to the base name of its executable
// image, e.g. "music.exe". The process may exit between enumeration and
// lookup; callers treat the error as a transient per-session miss.
func ImageBaseName(pid uint32) (string, error) {
	if pid == 0 {
		// PID 0 is the system sounds session; it has no image to open.
		return "", fmt.Errorf("pid 0 has no process image")
	}
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	var buf [windows.MAX_PATH]uint16
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("query image name of %d: %w", pid, err)
	}
	return filepath.Base(windows.UTF16ToString(buf[:size])), nil
}
