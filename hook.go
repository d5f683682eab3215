package livepatch

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/apex/log"
	"github.com/k2io/livepatch/internal/patch"
	"github.com/pkg/errors"
)

// Trampoline is the entry of a stub that runs a hooked function's original
// code. It is a non-owning reference: the HookManager owns the memory and
// it stays valid until the hook is removed.
type Trampoline uintptr

// Call invokes the original function with the C calling convention.
func (t Trampoline) Call(args ...uintptr) uintptr {
	return ccall(uintptr(t), args...)
}

// Patch is the memory modification behind a hook.
type Patch interface {
	// Trampoline returns the entry of the stub running the original code.
	Trampoline() uintptr
	// Restore puts the original bytes back and releases the stub.
	Restore() error
}

// Patcher applies a redirection from target to detour.
type Patcher interface {
	Patch(target, detour uintptr) (Patch, error)
}

// PatcherFunc adapts a function to Patcher.
type PatcherFunc func(target, detour uintptr) (Patch, error)

// Patch calls f(target, detour).
func (f PatcherFunc) Patch(target, detour uintptr) (Patch, error) {
	return f(target, detour)
}

var inlinePatcher = PatcherFunc(func(target, detour uintptr) (Patch, error) {
	p, err := patch.Apply(target, detour)
	if err != nil {
		return nil, err
	}
	return p, nil
})

// HookState is the lifecycle of a hook.
type HookState int

const (
	HookCreated HookState = iota
	HookEnabled
	HookRemoved
)

func (s HookState) String() string {
	switch s {
	case HookCreated:
		return "created"
	case HookEnabled:
		return "enabled"
	case HookRemoved:
		return "removed"
	}
	return "unknown"
}

// Hook is one installed redirection.
type Hook struct {
	target     uintptr
	detour     uintptr
	trampoline Trampoline
	// keeps the patched bytes and the trampoline alive
	patch Patch
	// written under the manager's mutex, read by anyone holding the hook
	state atomic.Int32
}

// Target returns the entry of the hooked function.
func (h *Hook) Target() uintptr { return h.target }

// Detour returns the replacement function.
func (h *Hook) Detour() uintptr { return h.detour }

// Trampoline returns the call-through stub.
func (h *Hook) Trampoline() Trampoline { return h.trampoline }

// State returns the lifecycle state.
func (h *Hook) State() HookState { return HookState(h.state.Load()) }

// HookManager installs hooks and maps each detour back to the trampoline
// of the function it replaced.
//
// Every operation takes the same mutex. Lookups from detours only read a
// map under it, so the uncontended path neither blocks nor allocates.
// Nothing logs while holding it.
type HookManager struct {
	mu sync.Mutex
	// set when a patch panicked while mu was held
	poisoned bool
	patcher  Patcher
	// hooks applied, in install order
	hooks    []*Hook
	byTarget map[uintptr]*Hook
	byDetour map[uintptr]*Hook
	log      log.Interface
}

// NewHookManager returns an empty manager. A nil patcher rewrites the
// target's prologue in place, a nil logger uses log.Log.
func NewHookManager(patcher Patcher, logger log.Interface) *HookManager {
	if patcher == nil {
		patcher = inlinePatcher
	}
	if logger == nil {
		logger = log.Log
	}
	return &HookManager{
		patcher:  patcher,
		byTarget: make(map[uintptr]*Hook),
		byDetour: make(map[uintptr]*Hook),
		log:      logger,
	}
}

func (m *HookManager) lock() error {
	m.mu.Lock()
	if m.poisoned {
		m.mu.Unlock()
		return ErrRegistryLockFailed
	}
	return nil
}

// guard runs fn with mu held and turns a panic into an error. The registry
// is poisoned afterwards since target memory may be half written.
func (m *HookManager) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.poisoned = true
			err = errors.Wrapf(ErrRegistryLockFailed, "panic: %v", r)
		}
	}()
	return fn()
}

func hookFields(target, detour uintptr) log.Fields {
	return log.Fields{"target": hexAddr(target), "detour": hexAddr(detour)}
}

// Install redirects target to detour and returns the trampoline that runs
// the original function. target must be the entry of a function whose
// prologue is at least as long as the redirection.
func (m *HookManager) Install(target, detour uintptr) (Trampoline, error) {
	ctx := m.log.WithFields(hookFields(target, detour))
	ctx.Info("hooking target function")
	tramp, err := m.install(target, detour)
	if err != nil {
		ctx.WithError(err).Error("failed to create hook")
		return 0, err
	}
	ctx.WithField("trampoline", hexAddr(uintptr(tramp))).Debug("hook enabled")
	return tramp, nil
}

func (m *HookManager) install(target, detour uintptr) (Trampoline, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	if target == 0 || detour == 0 {
		return 0, &InstallError{Target: target, Detour: detour, Err: errors.New("nil address")}
	}
	if _, ok := m.byTarget[target]; ok {
		return 0, errors.Wrapf(ErrHookTargetAlreadyPatched, "target %#x", target)
	}
	if _, ok := m.byDetour[detour]; ok {
		return 0, errors.Wrapf(ErrDetourInUse, "detour %#x", detour)
	}
	// early allocation: once the target is live a call may land in a detour
	// on another thread, nothing below the patch should have to allocate
	h := &Hook{target: target, detour: detour}
	m.hooks = slices.Grow(m.hooks, 1)
	m.byTarget[target] = nil
	m.byDetour[detour] = nil

	var p Patch
	err := m.guard(func() (err error) {
		p, err = m.patcher.Patch(target, detour)
		return err
	})
	if err != nil {
		delete(m.byTarget, target)
		delete(m.byDetour, detour)
		if errors.Is(err, ErrRegistryLockFailed) {
			return 0, err
		}
		return 0, &InstallError{Target: target, Detour: detour, Err: err}
	}
	// just set values here
	h.patch = p
	h.trampoline = Trampoline(p.Trampoline())
	h.state.Store(int32(HookEnabled))
	m.hooks = append(m.hooks, h)
	m.byTarget[target] = h
	m.byDetour[detour] = h
	return h.trampoline, nil
}

// GetOriginal returns the trampoline installed for detour. Detours call it
// to reach what the hooked function would have done.
func (m *HookManager) GetOriginal(detour uintptr) (Trampoline, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	h := m.byDetour[detour]
	m.mu.Unlock()
	if h == nil {
		return 0, ErrHookNotFound
	}
	return h.trampoline, nil
}

// MustOriginal is GetOriginal for use inside a detour, where no sensible
// fallback exists: it panics when detour was never installed.
func (m *HookManager) MustOriginal(detour uintptr) Trampoline {
	t, err := m.GetOriginal(detour)
	if err != nil {
		panic(errors.Wrapf(err, "detour %#x", detour))
	}
	return t
}

// CallOriginal calls the trampoline installed for detour with args.
func (m *HookManager) CallOriginal(detour uintptr, args ...uintptr) uintptr {
	return m.MustOriginal(detour).Call(args...)
}

// Remove restores the original bytes of the hook installed for detour and
// drops it. No thread may still be running in its trampoline.
func (m *HookManager) Remove(detour uintptr) error {
	if err := m.lock(); err != nil {
		return err
	}
	h := m.byDetour[detour]
	if h == nil {
		m.mu.Unlock()
		return errors.Wrapf(ErrHookNotFound, "detour %#x", detour)
	}
	err := m.remove(h)
	m.mu.Unlock()
	m.logRemoved(h, err)
	return err
}

func (m *HookManager) remove(h *Hook) error {
	if err := m.guard(h.patch.Restore); err != nil {
		return errors.Wrapf(err, "restore %#x", h.target)
	}
	delete(m.byTarget, h.target)
	delete(m.byDetour, h.detour)
	m.hooks = slices.DeleteFunc(m.hooks, func(x *Hook) bool { return x == h })
	h.state.Store(int32(HookRemoved))
	return nil
}

func (m *HookManager) logRemoved(h *Hook, err error) {
	ctx := m.log.WithFields(hookFields(h.target, h.detour))
	if err != nil {
		ctx.WithError(err).Error("failed to restore hook")
		return
	}
	ctx.Info("hook removed")
}

// Close removes every hook, last installed first. It keeps going past a
// hook that fails to restore and returns the first error.
func (m *HookManager) Close() error {
	if err := m.lock(); err != nil {
		return err
	}
	type removal struct {
		h   *Hook
		err error
	}
	var done []removal
	var first error
	for i := len(m.hooks) - 1; i >= 0; i-- {
		h := m.hooks[i]
		err := m.remove(h)
		done = append(done, removal{h, err})
		if err != nil {
			if first == nil {
				first = err
			}
			if m.poisoned {
				break
			}
		}
	}
	m.mu.Unlock()
	for _, r := range done {
		m.logRemoved(r.h, r.err)
	}
	return first
}

// Hooks returns the active hooks in install order.
func (m *HookManager) Hooks() ([]*Hook, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return slices.Clone(m.hooks), nil
}
