//go:build unix

package patch

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var pageSize = uintptr(unix.Getpagesize())

// pages returns the whole pages covering [addr, addr+size).
func pages(addr, size uintptr) []byte {
	start := alignDown(addr, pageSize)
	end := alignUp(addr+size, pageSize)
	return makeSlice(start, end-start)
}

func protectPages(addr, size uintptr) error {
	return unix.Mprotect(pages(addr, size), unix.PROT_EXEC|unix.PROT_READ|unix.PROT_WRITE)
}

// protRange is a page range and the protection it had before a write.
type protRange struct {
	start, end uintptr
	prot       int
}

func reProtectPages(prev []protRange) error {
	for _, r := range prev {
		if err := unix.Mprotect(makeSlice(r.start, r.end-r.start), r.prot); err != nil {
			return err
		}
	}
	return nil
}

// writeCode copies code over addr and puts back the protection every
// touched page had before.
func writeCode(addr uintptr, code []byte) error {
	size := uintptr(len(code))
	prev, err := protections(addr, size)
	if err != nil {
		return errors.Wrapf(ErrProtect, "%#x: %v", addr, err)
	}
	if err := protectPages(addr, size); err != nil {
		return errors.Wrapf(ErrProtect, "%#x: %v", addr, err)
	}
	copy(makeSlice(addr, size), code)
	if err := reProtectPages(prev); err != nil {
		return errors.Wrapf(ErrProtect, "%#x: %v", addr, err)
	}
	return nil
}

func allocExec(size uintptr) ([]byte, error) {
	return unix.Mmap(-1, 0, int(alignUp(size, pageSize)),
		unix.PROT_EXEC|unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func freeExec(b []byte) error {
	if b == nil {
		return nil
	}
	return unix.Munmap(b)
}
