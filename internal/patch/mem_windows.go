//go:build windows

package patch

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

var pageSize = uintptr(windows.Getpagesize())

// writeCode copies code over addr and puts back whatever protection the
// pages had before.
func writeCode(addr uintptr, code []byte) error {
	size := uintptr(len(code))
	var old uint32
	if err := windows.VirtualProtect(addr, size, windows.PAGE_EXECUTE_READWRITE, &old); err != nil {
		return errors.Wrapf(ErrProtect, "%#x: %v", addr, err)
	}
	copy(makeSlice(addr, size), code)
	if err := windows.VirtualProtect(addr, size, old, &old); err != nil {
		return errors.Wrapf(ErrProtect, "%#x: %v", addr, err)
	}
	return nil
}

func allocExec(size uintptr) ([]byte, error) {
	size = alignUp(size, pageSize)
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return nil, err
	}
	return makeSlice(addr, size), nil
}

func freeExec(b []byte) error {
	if b == nil {
		return nil
	}
	return windows.VirtualFree(slicePtr(b), 0, windows.MEM_RELEASE)
}
