package objsym

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

type peFile struct {
	pe *pe.File
}

func openPE(r io.ReaderAt) (rawFile, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, err
	}
	return &peFile{f}, nil
}

func (f *peFile) Format() string {
	return "pe"
}

func (f *peFile) imageBase() uint64 {
	switch oh := f.pe.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return uint64(oh.ImageBase)
	case *pe.OptionalHeader64:
		return oh.ImageBase
	}
	return 0
}

func (f *peFile) exportDirectory() pe.DataDirectory {
	switch oh := f.pe.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes > pe.IMAGE_DIRECTORY_ENTRY_EXPORT {
			return oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
		}
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes > pe.IMAGE_DIRECTORY_ENTRY_EXPORT {
			return oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
		}
	}
	return pe.DataDirectory{}
}

func (f *peFile) Sections() ([]Section, error) {
	base := f.imageBase()
	var text []Section
	for _, s := range f.pe.Sections {
		if s.Characteristics&pe.IMAGE_SCN_MEM_EXECUTE == 0 {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, errors.Wrap(err, s.Name)
		}
		text = append(text, Section{Name: s.Name, Addr: base + uint64(s.VirtualAddress), Data: data})
	}
	return text, nil
}

// Symbols returns the export table, plus the COFF table when the image
// still carries one.
func (f *peFile) Symbols() (map[string]uint64, error) {
	base := f.imageBase()
	syms := make(map[string]uint64)
	for _, s := range f.pe.Symbols {
		if s.SectionNumber <= 0 || int(s.SectionNumber) > len(f.pe.Sections) {
			continue
		}
		sec := f.pe.Sections[s.SectionNumber-1]
		syms[s.Name] = base + uint64(sec.VirtualAddress) + uint64(s.Value)
	}
	if err := f.exports(base, syms); err != nil {
		return nil, errors.Wrap(err, "export directory")
	}
	return syms, nil
}

// exports walks IMAGE_EXPORT_DIRECTORY. Forwarded exports point into the
// directory itself and are kept as they are.
func (f *peFile) exports(base uint64, syms map[string]uint64) error {
	dd := f.exportDirectory()
	if dd.VirtualAddress == 0 || dd.Size == 0 {
		return nil
	}
	rv := &rvaReader{f: f.pe, data: make(map[*pe.Section][]byte)}
	dir, err := rv.read(dd.VirtualAddress, 40)
	if err != nil {
		return err
	}
	numNames := binary.LittleEndian.Uint32(dir[24:])
	functions := binary.LittleEndian.Uint32(dir[28:])
	names := binary.LittleEndian.Uint32(dir[32:])
	ordinals := binary.LittleEndian.Uint32(dir[36:])
	for i := uint32(0); i < numNames; i++ {
		b, err := rv.read(names+4*i, 4)
		if err != nil {
			return err
		}
		name, err := rv.cstring(binary.LittleEndian.Uint32(b))
		if err != nil {
			return err
		}
		if b, err = rv.read(ordinals+2*i, 2); err != nil {
			return err
		}
		ord := uint32(binary.LittleEndian.Uint16(b))
		if b, err = rv.read(functions+4*ord, 4); err != nil {
			return err
		}
		syms[name] = base + uint64(binary.LittleEndian.Uint32(b))
	}
	return nil
}

type rvaReader struct {
	f    *pe.File
	data map[*pe.Section][]byte
}

func (rv *rvaReader) at(rva uint32) ([]byte, error) {
	for _, s := range rv.f.Sections {
		size := max(s.VirtualSize, s.Size)
		if rva < s.VirtualAddress || rva >= s.VirtualAddress+size {
			continue
		}
		data, ok := rv.data[s]
		if !ok {
			var err error
			if data, err = s.Data(); err != nil {
				return nil, err
			}
			rv.data[s] = data
		}
		off := rva - s.VirtualAddress
		if off >= uint32(len(data)) {
			break
		}
		return data[off:], nil
	}
	return nil, errors.Errorf("rva %#x outside file data", rva)
}

func (rv *rvaReader) read(rva, n uint32) ([]byte, error) {
	b, err := rv.at(rva)
	if err != nil {
		return nil, err
	}
	if uint32(len(b)) < n {
		return nil, errors.Errorf("rva %#x: short read", rva)
	}
	return b[:n], nil
}

func (rv *rvaReader) cstring(rva uint32) (string, error) {
	b, err := rv.at(rva)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}
