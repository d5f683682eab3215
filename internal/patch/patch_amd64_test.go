package patch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureLength(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int
		err  error
	}{
		{
			name: "exact",
			code: []byte{
				0x55,             // PUSH RBP
				0x48, 0x89, 0xe5, // MOV RBP, RSP
				0x48, 0x89, 0xf8, // MOV RAX, RDI
				0x48, 0x01, 0xf0, // ADD RAX, RSI
				0x90, 0x90, 0x90, // NOP
				0x5d, 0xc3,
			},
			want: 13,
		},
		{
			name: "split instruction",
			code: []byte{
				0x48, 0x89, 0x5c, 0x24, 0x08, // MOV [RSP+8], RBX
				0x48, 0x89, 0x6c, 0x24, 0x10, // MOV [RSP+0x10], RBP
				0x48, 0x89, 0x74, 0x24, 0x18, // MOV [RSP+0x18], RSI
				0x57, 0xc3,
			},
			want: 15,
		},
		{
			name: "rip relative",
			code: []byte{
				0x48, 0x8b, 0x05, 0x00, 0x00, 0x00, 0x00, // MOV RAX, [RIP+0]
				0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90,
			},
			err: ErrRelativeAddr,
		},
		{
			name: "relative call",
			code: []byte{
				0x55,                         // PUSH RBP
				0xe8, 0x00, 0x00, 0x00, 0x00, // CALL rel32
				0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90,
			},
			err: ErrRelativeAddr,
		},
		{
			name: "too short",
			code: []byte{
				0x31, 0xc0, // XOR EAX, EAX
				0xc3,       // RET
				0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc,
			},
			err: ErrPrologueTooShort,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inf, err := ensureLength(func(off int) []byte { return tt.code[off:] }, jumpLen)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, inf.length)
			require.True(t, inf.relocatable)
		})
	}
}

func TestJumpSequences(t *testing.T) {
	require.Len(t, r11Jump(0x1122334455667788), jumpLen)
	require.Equal(t, []byte{
		0x49, 0xbb, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
		0x41, 0xff, 0xe3,
	}, r11Jump(0x1122334455667788))
	require.Equal(t, []byte{
		0xff, 0x25, 0, 0, 0, 0,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}, ripJump(0x0102030405060708))
}
