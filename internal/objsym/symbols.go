// Package objsym reads executable sections and exported symbols from
// object files on disk, so signatures can be checked without running the
// host program.
package objsym

import (
	"io"
	"os"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Section is an executable section with its preferred load address.
type Section struct {
	Name string
	Addr uint64
	Data []byte
}

// Image is the executable content of an object file.
type Image struct {
	Format  string
	Text    []Section
	Symbols map[string]uint64
}

// Symbol returns the preferred address of a symbol.
func (img *Image) Symbol(name string) (uint64, bool) {
	v, ok := img.Symbols[name]
	return v, ok
}

type rawFile interface {
	Format() string
	Sections() ([]Section, error)
	Symbols() (map[string]uint64, error)
}

var objType = []func(io.ReaderAt) (rawFile, error){
	openElf,
	openPE,
	openMacho,
}

// Open reads name as ELF, PE or Mach-O.
func Open(name string) (*Image, error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	for _, try := range objType {
		raw, err := try(r)
		if err != nil {
			log.WithError(err).WithField("file", name).Debug("object format rejected")
			continue
		}
		img := &Image{Format: raw.Format()}
		if img.Text, err = raw.Sections(); err != nil {
			return nil, errors.Wrapf(err, "read sections of %s", name)
		}
		if img.Symbols, err = raw.Symbols(); err != nil {
			return nil, errors.Wrapf(err, "read symbols of %s", name)
		}
		return img, nil
	}
	return nil, errors.Errorf("open %s: unrecognized object file", name)
}
