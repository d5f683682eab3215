// Package procmod binds file names to shared libraries that are already
// mapped into the current process. Nothing is loaded from disk.
package procmod

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotResident means no library with that file name is mapped
	ErrNotResident = errors.New("module is not resident")
	// ErrUnsupported means the platform has no opener
	ErrUnsupported = errors.New("unsupported platform")
)

// Range is a half-open address range.
type Range struct {
	Start uintptr
	End   uintptr
}

// Size returns the length of the range in bytes.
func (r Range) Size() uintptr {
	return r.End - r.Start
}

// Library is a resident shared library.
type Library struct {
	// Path is the file the library was mapped from
	Path string
	// Handle is the loader handle, usable for symbol lookups
	Handle uintptr
	// Base is the load address
	Base uintptr
	// Text is the first executable region of the image
	Text Range
}
