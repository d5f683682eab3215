package patch

import (
	"os"

	"github.com/k2io/livepatch/internal/procmod"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// protections reads the current protection of the pages covering
// [addr, addr+size) from /proc/self/maps.
func protections(addr, size uintptr) ([]protRange, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	maps, err := procmod.ParseMaps(f)
	if err != nil {
		return nil, err
	}
	p := pages(addr, size)
	start := slicePtr(p)
	end := start + uintptr(len(p))
	var prev []protRange
	for _, m := range maps {
		if m.End <= start || m.Start >= end {
			continue
		}
		prev = append(prev, protRange{start: max(m.Start, start), end: min(m.End, end), prot: permProt(m.Perms)})
	}
	if len(prev) == 0 {
		return nil, errors.Errorf("%#x is not mapped", addr)
	}
	return prev, nil
}

func permProt(perms string) int {
	prot := unix.PROT_NONE
	for i, flag := range []int{unix.PROT_READ, unix.PROT_WRITE, unix.PROT_EXEC} {
		if i < len(perms) && perms[i] != '-' {
			prot |= flag
		}
	}
	return prot
}
