package livepatch

import (
	"slices"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Session wires the module registry, the hook manager and the interface
// resolver together. Consumers receive a Session instead of reaching for
// package state.
type Session struct {
	modules    *ModuleRegistry
	hooks      *HookManager
	interfaces *InterfaceResolver
	log        log.Interface
}

type options struct {
	logger  log.Interface
	opener  Opener
	patcher Patcher
	factory FactoryCaller
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l log.Interface) Option {
	return func(o *options) { o.logger = l }
}

// WithOpener replaces the resident module opener.
func WithOpener(op Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithPatcher replaces the inline prologue patcher.
func WithPatcher(p Patcher) Option {
	return func(o *options) { o.patcher = p }
}

// WithFactoryCaller replaces how interface factories are invoked.
func WithFactoryCaller(c FactoryCaller) Option {
	return func(o *options) { o.factory = c }
}

// New returns an uninitialized session.
func New(opts ...Option) *Session {
	o := options{logger: log.Log}
	for _, opt := range opts {
		opt(&o)
	}
	return &Session{
		modules:    NewModuleRegistry(o.opener, o.logger),
		hooks:      NewHookManager(o.patcher, o.logger),
		interfaces: NewInterfaceResolver(o.factory, o.logger),
		log:        o.logger,
	}
}

// Modules returns the module registry.
func (s *Session) Modules() *ModuleRegistry { return s.modules }

// Hooks returns the hook manager.
func (s *Session) Hooks() *HookManager { return s.hooks }

// Interfaces returns the interface resolver.
func (s *Session) Interfaces() *InterfaceResolver { return s.interfaces }

// Initialize opens the named modules. See ModuleRegistry.Initialize.
func (s *Session) Initialize(modules []string) error {
	return s.modules.Initialize(modules)
}

// Module returns an initialized module and panics if there is none.
func (s *Session) Module(name string) *Module {
	return s.modules.Module(name)
}

// Interface resolves name through the factory of the named module.
func (s *Session) Interface(module, name string) (uintptr, error) {
	return s.interfaces.Resolve(s.modules.Module(module), name)
}

// HookSpec describes a hook whose target is found by signature.
type HookSpec struct {
	// Name labels the hook in logs
	Name      string
	Module    string
	Signature string
	Detour    uintptr
}

// HookResult is the outcome of installing one HookSpec.
type HookResult struct {
	Spec       HookSpec
	Target     uintptr
	Trampoline Trampoline
	Err        error
}

// Install finds spec's target and hooks it. An unknown module panics like
// Module does; every other failure is logged and returned in the result.
func (s *Session) Install(spec HookSpec) HookResult {
	res := HookResult{Spec: spec}
	m := s.modules.Module(spec.Module)
	ctx := s.log.WithFields(log.Fields{"hook": spec.Name, "module": spec.Module})
	res.Target, res.Err = m.Find(spec.Name, spec.Signature)
	if res.Err != nil {
		ctx.WithError(res.Err).Error("failed to find " + spec.Name + " pattern")
		return res
	}
	res.Trampoline, res.Err = s.hooks.Install(res.Target, spec.Detour)
	if res.Err != nil {
		ctx.WithError(res.Err).WithField("target", hexAddr(res.Target)).Error("failed to create hook")
	}
	return res
}

// InstallAll installs every spec in order, skipping the ones that fail.
func (s *Session) InstallAll(specs []HookSpec) []HookResult {
	results := make([]HookResult, 0, len(specs))
	installed := 0
	for _, spec := range specs {
		res := s.Install(spec)
		if res.Err == nil {
			installed++
		}
		results = append(results, res)
	}
	s.log.WithFields(log.Fields{"installed": installed, "total": len(specs)}).Info("hooks initialized")
	return results
}

// Shutdown removes every hook, last installed first. Modules and resolved
// interfaces stay valid; they belong to the host process.
func (s *Session) Shutdown() error {
	return s.hooks.Close()
}

// InstallManifest initializes the manifest's modules, resolves its
// interfaces and installs a hook for every signature that has a detour in
// detours. Module and interface failures stop the bootstrap; hook failures
// are reported per result like InstallAll does.
func (s *Session) InstallManifest(m *Manifest, detours map[string]uintptr) ([]HookResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := s.Initialize(m.Modules); err != nil {
		return nil, err
	}
	for _, in := range m.Interfaces {
		if _, err := s.Interface(in.Module, in.Name); err != nil {
			return nil, errors.Wrapf(err, "failed to find %s", in.Name)
		}
	}
	for name := range detours {
		if !slices.ContainsFunc(m.Signatures, func(sig ManifestSignature) bool { return sig.Name == name }) {
			s.log.WithField("hook", name).Warn("detour has no signature in manifest")
		}
	}
	return s.InstallAll(m.HookSpecs(detours)), nil
}
