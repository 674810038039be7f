//go:build !windows

package keys

import "errors"

// NewReader is unavailable off Windows; the engine is exercised through
// ReaderFunc fakes in tests instead.
func NewReader() (Reader, error) {
	return nil, errors.New("global key state queries are only supported on windows")
}
