// Copyright (C) 2022 K2 Cyber Security Inc.

package patch

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

const (
	// MOV R11, imm64; JMP R11
	jumpLen = 13
	// longest encodable x86 instruction
	maxInstLen = 15
	// moved prologue plus the jump back always fit
	stubSize = 64
	int3     = 0xcc
)

type info struct {
	length      int
	relocatable bool
	terminal    bool
}

// r11Jump is written over the target. R11 is scratch on entry in both the
// System V and Microsoft x64 conventions.
func r11Jump(addr uintptr) []byte {
	seq := []byte{0x49, 0xbb} // MOV R11, addr64
	seq = binary.LittleEndian.AppendUint64(seq, uint64(addr))
	return append(seq, 0x41, 0xff, 0xe3) // JMP R11
}

// ripJump ends the trampoline. It touches no register, so whatever the
// moved instructions left in R11 survives into the original function.
func ripJump(addr uintptr) []byte {
	seq := []byte{0xff, 0x25, 0, 0, 0, 0} // JMP [RIP+0]
	return binary.LittleEndian.AppendUint64(seq, uint64(addr))
}

// Apply redirects target to detour and returns the patch holding the
// trampoline to the original code.
func Apply(target, detour uintptr) (*Patch, error) {
	inf, err := ensureLength(func(off int) []byte { return codeAt(target + uintptr(off)) }, jumpLen)
	if err != nil {
		return nil, err
	}
	stub, err := allocExec(stubSize)
	if err != nil {
		return nil, errors.Wrap(err, "allocate trampoline")
	}
	saved := make([]byte, inf.length)
	copy(saved, makeSlice(target, uintptr(inf.length)))

	//1. origFn first bytes copied to the trampoline
	n := copy(stub, saved)
	//2. trampoline jumps back past the patched region
	copy(stub[n:], ripJump(target+uintptr(inf.length)))
	//3. origFn overwritten to jmp to detour, the tail of a split instruction is trapped
	code := r11Jump(detour)
	for len(code) < inf.length {
		code = append(code, int3)
	}
	if err := writeCode(target, code); err != nil {
		_ = freeExec(stub)
		return nil, err
	}
	return &Patch{target: target, saved: saved, stub: stub}, nil
}

// codeAt views the instruction at addr. The view stops at the end of the
// page unless the instruction really continues on the next one, so a
// function ending just before an unmapped page is never read past.
func codeAt(addr uintptr) []byte {
	n := uintptr(maxInstLen)
	if room := alignUp(addr+1, pageSize) - addr; room < n {
		src := makeSlice(addr, room)
		if _, err := x86asm.Decode(src, 64); err == nil {
			return src
		}
	}
	return makeSlice(addr, n)
}

// ensureLength decodes whole instructions until at least size bytes are
// covered. at returns the code starting at an offset from the function entry.
func ensureLength(at func(off int) []byte, size int) (info, error) {
	var inf info
	inf.relocatable = true
	for inf.length < size {
		i, err := analysis(at(inf.length))
		if err != nil {
			return inf, errors.Wrapf(err, "decode at +%d", inf.length)
		}
		if i.terminal && inf.length+i.length < size {
			return inf, errors.Wrapf(ErrPrologueTooShort, "function ends at +%d", inf.length+i.length)
		}
		if !i.relocatable {
			return inf, errors.Wrapf(ErrRelativeAddr, "instruction at +%d", inf.length)
		}
		inf.length += i.length
	}
	return inf, nil
}

func analysis(src []byte) (inf info, err error) {
	inst, err := x86asm.Decode(src, 64)
	if err != nil {
		return
	}
	inf.length = inst.Len
	inf.relocatable = true
	switch inst.Op {
	case x86asm.RET, x86asm.LRET, x86asm.JMP, x86asm.LJMP, x86asm.INT, x86asm.UD2, x86asm.HLT:
		inf.terminal = true
	}
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if mem, ok := a.(x86asm.Mem); ok {
			if mem.Base == x86asm.RIP {
				inf.relocatable = false
			}
		} else if _, ok := a.(x86asm.Rel); ok {
			inf.relocatable = false
		}
	}
	return
}
