package procmod

import (
	"bytes"
	"debug/pe"

	"github.com/pkg/errors"
)

// textRange finds the first executable section of a mapped PE image.
// Only the headers are read, so the section layout is the in-memory one.
func textRange(image []byte, base uintptr) (Range, error) {
	f, err := pe.NewFile(bytes.NewReader(image))
	if err != nil {
		return Range{}, errors.Wrap(err, "parse image headers")
	}
	for _, s := range f.Sections {
		if s.Characteristics&pe.IMAGE_SCN_MEM_EXECUTE == 0 {
			continue
		}
		start := base + uintptr(s.VirtualAddress)
		return Range{Start: start, End: start + uintptr(s.VirtualSize)}, nil
	}
	return Range{}, errors.New("image has no executable section")
}
