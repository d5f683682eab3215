package livepatch

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// add(a, b), long enough to take the 13 byte jump.
var nativeAdd = []byte{
	0x55,             // PUSH RBP
	0x48, 0x89, 0xe5, // MOV RBP, RSP
	0x48, 0x89, 0xf8, // MOV RAX, RDI
	0x48, 0x01, 0xf0, // ADD RAX, RSI
	0x90, 0x90, 0x90, // NOP
	0x5d, // POP RBP
	0xc3, // RET
}

// nativeDoubling calls the function at imm64 and doubles what it returns.
var nativeDoubling = []byte{
	0x48, 0x83, 0xec, 0x08, // SUB RSP, 8
	0x48, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, // MOV RAX, imm64
	0xff, 0xd0, // CALL RAX
	0x48, 0x83, 0xc4, 0x08, // ADD RSP, 8
	0x48, 0x01, 0xc0, // ADD RAX, RAX
	0xc3, // RET
}

func mapCode(t *testing.T, code []byte) []byte {
	t.Helper()
	mem, err := unix.Mmap(-1, 0, unix.Getpagesize(),
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Munmap(mem) })
	copy(mem, code)
	return mem
}

func TestHookNativeAdd(t *testing.T) {
	add := mapCode(t, nativeAdd)
	detour := mapCode(t, nativeDoubling)
	target := uintptr(unsafe.Pointer(&add[0]))
	detourAddr := uintptr(unsafe.Pointer(&detour[0]))

	logger, _ := memoryLogger()
	m := NewHookManager(nil, logger)
	require.Equal(t, uintptr(5), ccall(target, 2, 3))

	tramp, err := m.Install(target, detourAddr)
	require.NoError(t, err)
	// the detour reaches the original the way a Go detour would, by
	// looking itself up
	binary.LittleEndian.PutUint64(detour[6:], uint64(m.MustOriginal(detourAddr)))

	require.Equal(t, uintptr(10), ccall(target, 2, 3))
	require.Equal(t, uintptr(5), tramp.Call(2, 3))
	require.Equal(t, uintptr(5), m.CallOriginal(detourAddr, 2, 3))

	_, err = m.Install(target, detourAddr+1)
	require.ErrorIs(t, err, ErrHookTargetAlreadyPatched)
	require.Equal(t, uintptr(10), ccall(target, 2, 3))

	require.NoError(t, m.Close())
	require.Equal(t, nativeAdd, add[:len(nativeAdd)])
	require.Equal(t, uintptr(5), ccall(target, 2, 3))
}

func TestHookNativeRejectsShortFunction(t *testing.T) {
	ret := mapCode(t, []byte{0x31, 0xc0, 0xc3}) // XOR EAX, EAX; RET
	logger, _ := memoryLogger()
	m := NewHookManager(nil, logger)

	_, err := m.Install(uintptr(unsafe.Pointer(&ret[0])), 0x1000)
	require.ErrorIs(t, err, ErrHookInstallFailed)
	require.Empty(t, activeHooks(t, m))
}
