//go:build !windows

package procutil

import "fmt"

// ImageBaseName is unavailable off Windows.
func ImageBaseName(pid uint32) (string, error) {
	return "", fmt.Errorf("process image lookup is only supported on windows (pid %d)", pid)
}
