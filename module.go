package livepatch

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Module is a shared library resident in the process, identified by a
// short logical name such as "client" or "engine2".
type Module struct {
	name   string
	file   string
	handle uintptr
	base   uintptr
	text   Region
	symbol func(name string) (uintptr, error)
	log    log.Interface
}

// NewModule describes a library already mapped into the process. It is
// what an Opener returns; the registry fills in the logical name.
func NewModule(file string, handle, base uintptr, text Region, symbol func(string) (uintptr, error)) *Module {
	return &Module{
		file:   file,
		handle: handle,
		base:   base,
		text:   text,
		symbol: symbol,
		log:    log.Log,
	}
}

// Name returns the logical name.
func (m *Module) Name() string { return m.name }

// File returns the platform file name the module was opened by.
func (m *Module) File() string { return m.file }

// Handle returns the loader handle.
func (m *Module) Handle() uintptr { return m.handle }

// Base returns the load address.
func (m *Module) Base() uintptr { return m.base }

// Text returns the executable region scanned by Find.
func (m *Module) Text() Region { return m.text }

// Symbol returns the address of an exported symbol.
func (m *Module) Symbol(name string) (uintptr, error) {
	if m.symbol == nil {
		return 0, errors.Wrapf(ErrSymbolNotFound, "%s in %s", name, m.file)
	}
	addr, err := m.symbol(name)
	if err != nil || addr == 0 {
		return 0, errors.Wrapf(ErrSymbolNotFound, "%s in %s: %v", name, m.file, err)
	}
	return addr, nil
}

// Find parses sig and returns the address of its first match in the
// module's text. name only labels errors and log lines.
func (m *Module) Find(name, sig string) (uintptr, error) {
	p, err := ParsePattern(sig)
	if err != nil {
		return 0, errors.Wrapf(err, "%s pattern", name)
	}
	return m.FindPattern(name, p)
}

// FindPattern is Find for a parsed pattern.
func (m *Module) FindPattern(name string, p *Pattern) (uintptr, error) {
	addr, ok := p.Scan(m.text)
	if !ok {
		return 0, errors.Wrapf(ErrPatternNotFound, "%s in %s", name, m.file)
	}
	m.log.WithFields(log.Fields{
		"pattern": name,
		"address": hexAddr(addr),
		"offset":  hexAddr(addr - m.base),
	}).Debug("pattern found")
	return addr, nil
}

// Opener binds a file name to a library already mapped into the process.
type Opener interface {
	Open(file string) (*Module, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(file string) (*Module, error)

// Open calls f(file).
func (f OpenerFunc) Open(file string) (*Module, error) {
	return f(file)
}

// FileName maps a logical module name to the file name used on this
// platform.
func FileName(name string) string {
	return FileNameFor(runtime.GOOS, name)
}

// FileNameFor maps a logical module name to the file name used on goos.
func FileNameFor(goos, name string) string {
	if goos == "windows" {
		return name + ".dll"
	}
	return name + ".so"
}

// ModuleRegistry holds the modules opened at startup. It is populated
// once and read-only afterwards.
type ModuleRegistry struct {
	mu      sync.Mutex
	opener  Opener
	modules []*Module
	ready   bool
	log     log.Interface
}

// NewModuleRegistry returns an empty registry. A nil opener binds to the
// libraries of the current process, a nil logger uses log.Log.
func NewModuleRegistry(opener Opener, logger log.Interface) *ModuleRegistry {
	if opener == nil {
		opener = residentOpener
	}
	if logger == nil {
		logger = log.Log
	}
	return &ModuleRegistry{opener: opener, log: logger}
}

// Initialize opens every named module. It succeeds at most once; if any
// module cannot be opened nothing is recorded.
func (r *ModuleRegistry) Initialize(names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return ErrModuleAlreadyInitialized
	}
	modules := make([]*Module, 0, len(names))
	for _, name := range names {
		for _, m := range modules {
			if m.name == name {
				return errors.Errorf("module %s listed twice", name)
			}
		}
		file := FileName(name)
		m, err := r.opener.Open(file)
		if err != nil {
			return errors.Wrapf(err, "failed to open %s", file)
		}
		m.name = name
		m.file = file
		m.log = r.log.WithField("module", name)
		r.log.WithFields(log.Fields{
			"module": name,
			"handle": hexAddr(m.handle),
			"base":   hexAddr(m.base),
			"text":   fmt.Sprintf("%#x+%#x", m.text.Start, m.text.Size),
		}).Info("initialized module")
		modules = append(modules, m)
	}
	r.modules = modules
	r.ready = true
	return nil
}

// Lookup returns the module initialized under name.
func (r *ModuleRegistry) Lookup(name string) (*Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return nil, errors.Wrap(ErrModuleNotFound, "modules are not initialized")
	}
	for _, m := range r.modules {
		if m.name == name {
			return m, nil
		}
	}
	return nil, errors.Wrapf(ErrModuleNotFound, "module %s", FileName(name))
}

// Module is Lookup for names fixed at build time: a missing module is a
// deployment defect, so it panics.
func (r *ModuleRegistry) Module(name string) *Module {
	m, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return m
}

// Modules returns the modules in initialization order.
func (r *ModuleRegistry) Modules() []*Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Module(nil), r.modules...)
}

// ModuleByAddr returns the module whose text contains addr.
func (r *ModuleRegistry) ModuleByAddr(addr uintptr) (*Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.modules {
		if m.text.Contains(addr) {
			return m, true
		}
	}
	return nil, false
}

func hexAddr(addr uintptr) string {
	return fmt.Sprintf("%#x", addr)
}
