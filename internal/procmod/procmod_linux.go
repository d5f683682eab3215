//go:build linux

package procmod

import (
	"os"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// RTLD_NOLOAD: succeed only if the library is already loaded.
const rtldNoload = 0x4

// Open binds file to the library of that name in /proc/self/maps.
func Open(file string) (*Library, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil, errors.Wrap(err, "open maps")
	}
	defer f.Close()
	maps, err := ParseMaps(f)
	if err != nil {
		return nil, err
	}
	lib, ok := findLibrary(maps, file)
	if !ok {
		return nil, errors.Wrap(ErrNotResident, file)
	}
	h, err := purego.Dlopen(lib.Path, purego.RTLD_NOW|rtldNoload)
	if err != nil {
		return nil, errors.Wrapf(ErrNotResident, "dlopen %s: %v", lib.Path, err)
	}
	lib.Handle = h
	return lib, nil
}

// Symbol returns the address of an exported symbol.
func (l *Library) Symbol(name string) (uintptr, error) {
	return purego.Dlsym(l.Handle, name)
}
