package keys

// Reader reports the set of keys held down at call time. Implementations
// must not cache between calls: key state changes between events, so the
// pressed set is rebuilt fresh on every query.
type Reader interface {
	Pressed() Set
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func() Set

// Pressed implements Reader.
func (f ReaderFunc) Pressed() Set { return f() }
