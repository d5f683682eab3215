package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/apex/log"
	"github.com/gookit/color"
	"github.com/k2io/livepatch"
	"github.com/k2io/livepatch/internal/objsym"
	"github.com/pkg/errors"
)

var (
	successStyle = color.New(color.Green, color.OpBold)
	dangerStyle  = color.New(color.Red, color.OpBold)
	warningStyle = color.New(color.Yellow, color.OpBold)
	headerStyle  = color.New(color.Cyan, color.OpBold)
)

// match is where a signature was found in a module on disk.
type match struct {
	Name    string
	Module  string
	Section string
	// preferred load address of the first match
	Addr  uint64
	Count int
	Err   error
}

// factory reports whether a module exports the interface factory.
type factory struct {
	Module   string
	Required bool
	Found    bool
}

type report struct {
	Matches   []match
	Factories []factory
}

// Failed reports whether the manifest cannot be satisfied by the binaries.
func (r *report) Failed() bool {
	for _, m := range r.Matches {
		if m.Err != nil {
			return true
		}
	}
	for _, f := range r.Factories {
		if f.Required && !f.Found {
			return true
		}
	}
	return false
}

// check opens every module in the manifest from dir, named the way goos
// names them, and scans its executable sections.
func check(m *livepatch.Manifest, dir, goos string) (*report, error) {
	images := make(map[string]*objsym.Image, len(m.Modules))
	for _, name := range m.Modules {
		path := filepath.Join(dir, livepatch.FileNameFor(goos, name))
		img, err := objsym.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "module %s", name)
		}
		log.WithFields(log.Fields{
			"module":   name,
			"format":   img.Format,
			"sections": len(img.Text),
		}).Debug("opened module")
		images[name] = img
	}

	r := &report{}
	for _, s := range m.Signatures {
		r.Matches = append(r.Matches, scan(images[s.Module], s))
	}

	needFactory := make(map[string]bool)
	for _, in := range m.Interfaces {
		needFactory[in.Module] = true
	}
	for _, name := range m.Modules {
		_, ok := images[name].Symbol(livepatch.FactorySymbol)
		r.Factories = append(r.Factories, factory{Module: name, Required: needFactory[name], Found: ok})
	}
	return r, nil
}

func scan(img *objsym.Image, s livepatch.ManifestSignature) match {
	res := match{Name: s.Name, Module: s.Module}
	p, err := livepatch.ParsePattern(s.Pattern)
	if err != nil {
		res.Err = err
		return res
	}
	for _, sec := range img.Text {
		n := p.Count(sec.Data)
		if n == 0 {
			continue
		}
		if res.Count == 0 {
			res.Section = sec.Name
			res.Addr = sec.Addr + uint64(p.Index(sec.Data))
		}
		res.Count += n
	}
	if res.Count == 0 {
		res.Err = errors.Wrapf(livepatch.ErrPatternNotFound, "%s in %s", s.Name, s.Module)
	}
	log.WithFields(log.Fields{"pattern": s.Name, "module": s.Module, "matches": res.Count}).Debug("scanned")
	return res
}

func (r *report) print(w io.Writer) {
	fmt.Fprint(w, headerStyle.Sprintf("signatures\n"))
	for _, m := range r.Matches {
		switch {
		case m.Err != nil:
			fmt.Fprint(w, dangerStyle.Sprintf("[x] %s (%s): %v\n", m.Name, m.Module, m.Err))
		case m.Count > 1:
			fmt.Fprint(w, warningStyle.Sprintf("[!] %s (%s) -> 0x%016x %s, %d matches, first one is used\n",
				m.Name, m.Module, m.Addr, m.Section, m.Count))
		default:
			fmt.Fprint(w, successStyle.Sprintf("[+] %s (%s) -> 0x%016x %s\n", m.Name, m.Module, m.Addr, m.Section))
		}
	}
	fmt.Fprint(w, headerStyle.Sprintf("factories\n"))
	for _, f := range r.Factories {
		switch {
		case f.Found:
			fmt.Fprint(w, successStyle.Sprintf("[+] %s exports %s\n", f.Module, livepatch.FactorySymbol))
		case f.Required:
			fmt.Fprint(w, dangerStyle.Sprintf("[x] %s does not export %s\n", f.Module, livepatch.FactorySymbol))
		default:
			fmt.Fprint(w, warningStyle.Sprintf("[-] %s does not export %s\n", f.Module, livepatch.FactorySymbol))
		}
	}
}
