//go:build unix && !linux

package patch

import "golang.org/x/sys/unix"

// protections assumes the pages hold loader-mapped text. There is no
// portable way to query page protection on these systems.
func protections(addr, size uintptr) ([]protRange, error) {
	p := pages(addr, size)
	start := slicePtr(p)
	return []protRange{{start: start, end: start + uintptr(len(p)), prot: unix.PROT_READ | unix.PROT_EXEC}}, nil
}
