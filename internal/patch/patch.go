// Package patch rewrites function prologues in place and builds the
// trampolines that keep the original code callable.
//
// A patch has three parts:
//
//	target:     the first bytes of the hooked function, overwritten with an
//	            absolute jump to the detour
//	trampoline: a private executable page holding the overwritten
//	            instructions followed by a jump back to the rest of target
//	saved:      a copy of the overwritten bytes, written back by Restore
//
// Instructions are moved, never relocated. A prologue that needs relocation
// (RIP-relative operands, relative branches) is rejected.
package patch

import (
	"github.com/pkg/errors"
)

var (
	// ErrRelativeAddr means the prologue holds an instruction that cannot be moved
	ErrRelativeAddr = errors.New("relative address in instruction")
	// ErrPrologueTooShort means the function ends before the jump fits
	ErrPrologueTooShort = errors.New("prologue too short for patch")
	// ErrProtect means the page protection could not be changed
	ErrProtect = errors.New("cannot change page protection")
	// ErrUnsupportedArch means no patch sequence exists for this architecture
	ErrUnsupportedArch = errors.New("unsupported architecture")
)

// Patch is an applied redirection. It owns the saved prologue and the
// trampoline memory; both stay valid until Restore.
type Patch struct {
	target uintptr
	// the modified instructions, as they were before patching
	saved []byte
	// the moved instructions and the jump back
	stub     []byte
	restored bool
}

// Target returns the patched function entry.
func (p *Patch) Target() uintptr {
	return p.target
}

// Trampoline returns the entry of the stub that runs the original code.
func (p *Patch) Trampoline() uintptr {
	return slicePtr(p.stub)
}

// Saved returns the original prologue bytes.
func (p *Patch) Saved() []byte {
	return p.saved
}

// Restore writes the original prologue back and releases the trampoline.
// Nothing may be executing inside the trampoline when it is called.
func (p *Patch) Restore() error {
	if p.restored {
		return nil
	}
	if err := writeCode(p.target, p.saved); err != nil {
		return err
	}
	p.restored = true
	stub := p.stub
	p.stub = nil
	return freeExec(stub)
}
