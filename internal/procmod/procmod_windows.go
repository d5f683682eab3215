//go:build windows

package procmod

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// Open binds file to the module of that name in the current process
// without touching its reference count.
func Open(file string) (*Library, error) {
	name, err := windows.UTF16PtrFromString(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	var h windows.Handle
	err = windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, name, &h)
	if err != nil {
		return nil, errors.Wrapf(ErrNotResident, "%s: %v", file, err)
	}
	var mi windows.ModuleInfo
	err = windows.GetModuleInformation(windows.CurrentProcess(), h, &mi, uint32(unsafe.Sizeof(mi)))
	if err != nil {
		return nil, errors.Wrapf(err, "module information %s", file)
	}
	image := unsafe.Slice((*byte)(unsafe.Pointer(mi.BaseOfDll)), mi.SizeOfImage)
	text, err := textRange(image, mi.BaseOfDll)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	return &Library{
		Path:   modulePath(h, file),
		Handle: uintptr(h),
		Base:   mi.BaseOfDll,
		Text:   text,
	}, nil
}

func modulePath(h windows.Handle, fallback string) string {
	buf := make([]uint16, windows.MAX_LONG_PATH)
	n, err := windows.GetModuleFileName(h, &buf[0], uint32(len(buf)))
	if err != nil || n == 0 {
		return fallback
	}
	return windows.UTF16ToString(buf[:n])
}

// Symbol returns the address of an exported symbol.
func (l *Library) Symbol(name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(l.Handle), name)
}
