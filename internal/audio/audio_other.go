//go:build !windows

package audio

import "errors"

// NewSystem is unavailable off Windows; router logic is exercised through
// fake System implementations in tests instead.
func NewSystem() (System, error) {
	return nil, errors.New("core audio is only supported on windows")
}
