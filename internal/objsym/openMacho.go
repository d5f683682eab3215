package objsym

import (
	"debug/macho"
	"io"

	"github.com/pkg/errors"
)

const (
	sAttrPureInstructions = 0x80000000
	sAttrSomeInstructions = 0x00000400
)

type machoFile struct {
	macho *macho.File
}

func openMacho(r io.ReaderAt) (rawFile, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return nil, err
	}
	return &machoFile{f}, nil
}

func (f *machoFile) Format() string {
	return "macho"
}

func (f *machoFile) Sections() ([]Section, error) {
	var text []Section
	for _, s := range f.macho.Sections {
		if s.Flags&(sAttrPureInstructions|sAttrSomeInstructions) == 0 {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, errors.Wrap(err, s.Name)
		}
		text = append(text, Section{Name: s.Seg + "," + s.Name, Addr: s.Addr, Data: data})
	}
	return text, nil
}

func (f *machoFile) Symbols() (map[string]uint64, error) {
	syms := make(map[string]uint64)
	if f.macho.Symtab == nil {
		return syms, nil
	}
	for _, s := range f.macho.Symtab.Syms {
		if s.Value == 0 {
			continue
		}
		syms[s.Name] = s.Value
	}
	return syms, nil
}
