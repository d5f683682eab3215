package livepatch

import (
	"github.com/k2io/livepatch/internal/procmod"
)

var residentOpener = OpenerFunc(func(file string) (*Module, error) {
	lib, err := procmod.Open(file)
	if err != nil {
		return nil, err
	}
	text := Region{Start: lib.Text.Start, Size: lib.Text.Size()}
	return NewModule(file, lib.Handle, lib.Base, text, lib.Symbol), nil
})
