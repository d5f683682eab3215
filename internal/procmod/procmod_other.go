//go:build !linux && !windows

package procmod

// Open is not implemented on this platform.
func Open(file string) (*Library, error) {
	return nil, ErrUnsupported
}

// Symbol is not implemented on this platform.
func (l *Library) Symbol(name string) (uintptr, error) {
	return 0, ErrUnsupported
}
