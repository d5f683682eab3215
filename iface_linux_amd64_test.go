package livepatch

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// nativeFactory is CreateInterface returning strlen(name), or -1 when the
// return code pointer is not NULL.
var nativeFactory = []byte{
	0x48, 0x85, 0xf6, // TEST RSI, RSI
	0x75, 0x0e, // JNZ bad
	0x31, 0xc0, // XOR EAX, EAX
	0x80, 0x3c, 0x07, 0x00, // loop: CMP BYTE [RDI+RAX], 0
	0x74, 0x05, // JE done
	0x48, 0xff, 0xc0, // INC RAX
	0xeb, 0xf5, // JMP loop
	0xc3,                                     // done: RET
	0x48, 0xc7, 0xc0, 0xff, 0xff, 0xff, 0xff, // bad: MOV RAX, -1
	0xc3, // RET
}

func TestResolveNativeFactory(t *testing.T) {
	code := mapCode(t, nativeFactory)
	factory := uintptr(unsafe.Pointer(&code[0]))
	engine := NewModule("engine2.so", 1, 0, Region{}, func(name string) (uintptr, error) {
		return factory, nil
	})
	logger, _ := memoryLogger()
	r := NewInterfaceResolver(nil, logger)

	ptr, err := r.Resolve(engine, "Source2EngineToClient001")
	require.NoError(t, err)
	require.Equal(t, uintptr(len("Source2EngineToClient001")), ptr)

	ptr, err = callFactory(factory, "")
	require.NoError(t, err)
	require.Zero(t, ptr)
}
