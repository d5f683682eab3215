package livepatch

import (
	"runtime"
	"sync"
	"testing"
	"unsafe"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/pkg/errors"
)

func memoryLogger() (*log.Logger, *memory.Handler) {
	h := memory.New()
	return &log.Logger{Handler: h, Level: log.DebugLevel}, h
}

// regionOf views buf as process memory.
func regionOf(t *testing.T, buf []byte) Region {
	t.Helper()
	t.Cleanup(func() { runtime.KeepAlive(buf) })
	return Region{Start: uintptr(unsafe.Pointer(&buf[0])), Size: uintptr(len(buf))}
}

type fakePatch struct {
	p          *fakePatcher
	target     uintptr
	trampoline uintptr
	restoreErr error
}

func (f *fakePatch) Trampoline() uintptr { return f.trampoline }

func (f *fakePatch) Restore() error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.p.mu.Lock()
	f.p.restored = append(f.p.restored, f.target)
	f.p.mu.Unlock()
	return nil
}

type fakePatcher struct {
	mu         sync.Mutex
	applied    []uintptr
	restored   []uintptr
	fail       error
	panics     bool
	restoreErr map[uintptr]error
}

func (f *fakePatcher) Patch(target, detour uintptr) (Patch, error) {
	if f.panics {
		panic("bad page")
	}
	if f.fail != nil {
		return nil, f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, target)
	return &fakePatch{p: f, target: target, trampoline: target | 0xf000_0000, restoreErr: f.restoreErr[target]}, nil
}

// fakeOpener serves modules backed by Go byte slices.
type fakeOpener struct {
	mu      sync.Mutex
	text    map[string][]byte
	symbols map[string]map[string]uintptr
	opened  []string
}

func (f *fakeOpener) Open(file string) (*Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.text[file]
	if !ok {
		return nil, errors.Errorf("%s is not resident", file)
	}
	f.opened = append(f.opened, file)
	start := uintptr(unsafe.Pointer(&text[0]))
	syms := f.symbols[file]
	return NewModule(file, start|1, start, Region{Start: start, Size: uintptr(len(text))}, func(name string) (uintptr, error) {
		if addr, ok := syms[name]; ok {
			return addr, nil
		}
		return 0, errors.Errorf("undefined symbol: %s", name)
	}), nil
}

func activeHooks(t *testing.T, m *HookManager) []*Hook {
	t.Helper()
	hooks, err := m.Hooks()
	if err != nil {
		t.Fatal(err)
	}
	return hooks
}
