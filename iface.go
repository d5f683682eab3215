package livepatch

import (
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// FactorySymbol is the export a module publishes its interfaces through:
//
//	void *CreateInterface(const char *name, int *return_code);
const FactorySymbol = "CreateInterface"

// FactoryCaller invokes a factory export with an interface name.
type FactoryCaller func(factory uintptr, name string) (uintptr, error)

type interfaceKey struct {
	module string
	name   string
}

type interfaceEntry struct {
	once sync.Once
	ptr  uintptr
	err  error
}

// InterfaceResolver resolves named interfaces through module factories.
// Each (module, name) pair is resolved at most once and the result, good
// or bad, is kept for the life of the resolver.
type InterfaceResolver struct {
	mu      sync.Mutex
	entries map[interfaceKey]*interfaceEntry
	call    FactoryCaller
	log     log.Interface
}

// NewInterfaceResolver returns a resolver. A nil call uses the C calling
// convention, a nil logger uses log.Log.
func NewInterfaceResolver(call FactoryCaller, logger log.Interface) *InterfaceResolver {
	if call == nil {
		call = callFactory
	}
	if logger == nil {
		logger = log.Log
	}
	return &InterfaceResolver{
		entries: make(map[interfaceKey]*interfaceEntry),
		call:    call,
		log:     logger,
	}
}

// Resolve returns the interface pointer m's factory yields for name.
// Concurrent first callers share a single factory call. A NULL pointer from
// the factory is returned as is, without an error.
func (r *InterfaceResolver) Resolve(m *Module, name string) (uintptr, error) {
	key := interfaceKey{module: m.file, name: name}
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &interfaceEntry{}
		r.entries[key] = e
	}
	r.mu.Unlock()
	e.once.Do(func() {
		e.ptr, e.err = r.resolve(m, name)
	})
	return e.ptr, e.err
}

func (r *InterfaceResolver) resolve(m *Module, name string) (uintptr, error) {
	fields := log.Fields{"module": m.name, "interface": name}
	factory, err := m.Symbol(FactorySymbol)
	if err != nil {
		r.log.WithFields(fields).WithError(err).Error("failed to get function address for " + FactorySymbol)
		return 0, err
	}
	ptr, err := r.call(factory, name)
	if err != nil {
		r.log.WithFields(fields).WithError(err).Error("interface factory failed")
		return 0, errors.Wrapf(err, "%s %s", m.file, name)
	}
	r.log.WithFields(fields).WithField("pointer", hexAddr(ptr)).Debug("resolved interface")
	return ptr, nil
}

// MustResolve is Resolve for interfaces the program cannot run without.
// It panics on a missing factory or a NULL result.
func (r *InterfaceResolver) MustResolve(m *Module, name string) uintptr {
	ptr, err := r.Resolve(m, name)
	if err != nil {
		panic(errors.Wrapf(err, "failed to find %s", name))
	}
	if ptr == 0 {
		panic(errors.Errorf("failed to find %s", name))
	}
	return ptr
}
