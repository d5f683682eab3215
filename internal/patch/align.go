package patch

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

func alignDown[I constraints.Integer](a, b I) I {
	return a &^ (b - 1)
}

func alignUp[I constraints.Integer](a, b I) I {
	return (a + b - 1) &^ (b - 1)
}

func makeSlice(addr, size uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

func slicePtr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
