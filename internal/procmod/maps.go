package procmod

import (
	"bufio"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Mapping is one line of /proc/<pid>/maps.
type Mapping struct {
	Start  uintptr
	End    uintptr
	Offset uintptr
	Perms  string
	Path   string
}

// Executable reports whether the mapping is mapped with execute permission.
func (m Mapping) Executable() bool {
	return len(m.Perms) > 2 && m.Perms[2] == 'x'
}

// ParseMaps reads the maps format. Anonymous mappings are kept with an
// empty Path.
func ParseMaps(r io.Reader) ([]Mapping, error) {
	var maps []Mapping
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 {
			continue
		}
		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			return nil, errors.Errorf("bad address range %q", fields[0])
		}
		start, err := parseHex(lo)
		if err != nil {
			return nil, err
		}
		end, err := parseHex(hi)
		if err != nil {
			return nil, err
		}
		offset, err := parseHex(fields[2])
		if err != nil {
			return nil, err
		}
		m := Mapping{Start: start, End: end, Offset: offset, Perms: fields[1]}
		if len(fields) > 5 {
			m.Path = strings.TrimSuffix(strings.Join(fields[5:], " "), " (deleted)")
		}
		maps = append(maps, m)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read maps")
	}
	return maps, nil
}

func parseHex(s string) (uintptr, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad hex field %q", s)
	}
	return uintptr(v), nil
}

// findLibrary picks the first mapped path whose base name is file and
// collects its load base and first executable mapping.
func findLibrary(maps []Mapping, file string) (*Library, bool) {
	var lib *Library
	for _, m := range maps {
		if m.Path == "" {
			continue
		}
		if lib == nil {
			if filepath.Base(m.Path) != file || m.Start < m.Offset {
				continue
			}
			lib = &Library{Path: m.Path, Base: m.Start - m.Offset}
		}
		if m.Path != lib.Path {
			continue
		}
		if m.Executable() {
			lib.Text = Range{Start: m.Start, End: m.End}
			return lib, true
		}
	}
	return nil, false
}
