package livepatch

import (
	"bytes"
	"strconv"
	"strings"
	"unsafe"
)

// Region is a contiguous readable range of process memory.
type Region struct {
	Start uintptr
	Size  uintptr
}

// End returns the first address past the region.
func (r Region) End() uintptr {
	return r.Start + r.Size
}

// Contains reports whether addr lies inside the region.
func (r Region) Contains(addr uintptr) bool {
	return addr >= r.Start && addr < r.End()
}

// Bytes views the region as a slice. The memory is not copied.
func (r Region) Bytes() []byte {
	if r.Start == 0 || r.Size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(r.Start)), r.Size)
}

// Pattern is a byte signature where any position may be a wildcard.
//
// Signatures are whitespace separated tokens, each two hex digits or ??:
//
//	48 89 5C 24 ?? 48 89 6C 24 ??
type Pattern struct {
	sig   string
	bytes []byte
	// concrete positions; wildcards are false
	mask []bool
	// first concrete position, -1 when every position is a wildcard
	anchor int
}

// ParsePattern parses a textual signature.
func ParsePattern(sig string) (*Pattern, error) {
	fields := strings.Fields(sig)
	if len(fields) == 0 {
		return nil, &PatternError{Signature: sig, Pos: -1}
	}
	p := &Pattern{
		sig:    sig,
		bytes:  make([]byte, len(fields)),
		mask:   make([]bool, len(fields)),
		anchor: -1,
	}
	for i, tok := range fields {
		if tok == "??" {
			continue
		}
		if len(tok) != 2 {
			return nil, &PatternError{Signature: sig, Pos: i, Token: tok}
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, &PatternError{Signature: sig, Pos: i, Token: tok}
		}
		p.bytes[i] = byte(v)
		p.mask[i] = true
		if p.anchor < 0 {
			p.anchor = i
		}
	}
	return p, nil
}

// MustPattern is like ParsePattern but panics on a malformed signature.
// It is meant for signatures fixed at compile time.
func MustPattern(sig string) *Pattern {
	p, err := ParsePattern(sig)
	if err != nil {
		panic(err)
	}
	return p
}

// Len returns the number of bytes the pattern spans.
func (p *Pattern) Len() int {
	return len(p.bytes)
}

func (p *Pattern) String() string {
	return p.sig
}

// Index returns the earliest offset in mem where the pattern matches, or -1.
// The scan is a single left to right pass; the first concrete byte is
// located with bytes.IndexByte before the full comparison.
func (p *Pattern) Index(mem []byte) int {
	n := len(p.bytes)
	if n == 0 || len(mem) < n {
		return -1
	}
	last := len(mem) - n
	for i := 0; i <= last; i++ {
		if p.anchor >= 0 {
			j := bytes.IndexByte(mem[i+p.anchor:last+p.anchor+1], p.bytes[p.anchor])
			if j < 0 {
				return -1
			}
			i += j
		}
		if p.matchAt(mem[i:]) {
			return i
		}
	}
	return -1
}

func (p *Pattern) matchAt(mem []byte) bool {
	for i, b := range p.bytes {
		if p.mask[i] && mem[i] != b {
			return false
		}
	}
	return true
}

// Count returns how many offsets in mem match, overlapping matches
// included. It is a diagnostic for signatures that stopped being unique;
// Scan and Index still return only the first match.
func (p *Pattern) Count(mem []byte) int {
	n := 0
	for off := 0; off < len(mem); {
		i := p.Index(mem[off:])
		if i < 0 {
			break
		}
		n++
		off += i + 1
	}
	return n
}

// Scan returns the address of the first match inside r.
func (p *Pattern) Scan(r Region) (uintptr, bool) {
	i := p.Index(r.Bytes())
	if i < 0 {
		return 0, false
	}
	return r.Start + uintptr(i), true
}

// Scan returns the address of the first match of p inside r.
func Scan(r Region, p *Pattern) (uintptr, bool) {
	return p.Scan(r)
}
