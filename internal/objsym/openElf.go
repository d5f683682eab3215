package objsym

import (
	"debug/elf"
	"io"

	"github.com/pkg/errors"
)

type elfFile struct {
	elf *elf.File
}

func openElf(r io.ReaderAt) (rawFile, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	return &elfFile{f}, nil
}

func (e *elfFile) Format() string {
	return "elf"
}

func (e *elfFile) Sections() ([]Section, error) {
	var text []Section
	for _, s := range e.elf.Sections {
		if s.Type != elf.SHT_PROGBITS || s.Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, errors.Wrap(err, s.Name)
		}
		text = append(text, Section{Name: s.Name, Addr: s.Addr, Data: data})
	}
	return text, nil
}

// Symbols merges the dynamic and static tables; a stripped or static
// binary simply lacks one of them.
func (e *elfFile) Symbols() (map[string]uint64, error) {
	elfOff := make(map[string]uint64)
	for _, read := range []func() ([]elf.Symbol, error){e.elf.DynamicSymbols, e.elf.Symbols} {
		stab, err := read()
		if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
			return nil, err
		}
		for _, k := range stab {
			if k.Value == 0 {
				continue
			}
			if _, ok := elfOff[k.Name]; !ok {
				elfOff[k.Name] = k.Value
			}
		}
	}
	return elfOff, nil
}
