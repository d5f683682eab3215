package livepatch

import (
	"runtime"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// ccall calls a native function with the platform C calling convention.
func ccall(fn uintptr, args ...uintptr) uintptr {
	r, _, _ := purego.SyscallN(fn, args...)
	return r
}

// callFactory calls CreateInterface(name, NULL).
func callFactory(factory uintptr, name string) (uintptr, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return 0, errors.Errorf("interface name %q contains NUL", name)
	}
	cname := append([]byte(name), 0)
	ret := ccall(factory, uintptr(unsafe.Pointer(&cname[0])), 0)
	runtime.KeepAlive(cname)
	return ret, nil
}
