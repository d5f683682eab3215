package livepatch

import (
	"fmt"

	"github.com/k2io/livepatch/internal/patch"
	"github.com/pkg/errors"
)

var (
	// ErrModuleAlreadyInitialized means Initialize already succeeded
	ErrModuleAlreadyInitialized = errors.New("modules are already initialized")
	// ErrModuleNotFound means the name was never initialized
	ErrModuleNotFound = errors.New("module not found")
	// ErrPatternMalformed means a signature does not follow the grammar
	ErrPatternMalformed = errors.New("malformed pattern")
	// ErrPatternNotFound means no match in the scanned region
	ErrPatternNotFound = errors.New("pattern not found")
	// ErrSymbolNotFound means the module does not export the symbol
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrHookTargetAlreadyPatched means already hooked
	ErrHookTargetAlreadyPatched = errors.New("double hook")
	// ErrDetourInUse means the detour already serves another target
	ErrDetourInUse = errors.New("detour already installed")
	// ErrHookInstallFailed means the target could not be patched
	ErrHookInstallFailed = errors.New("hook install failed")
	// ErrHookNotFound means the hook not found
	ErrHookNotFound = errors.New("hook not found")
	// ErrRegistryLockFailed means a previous registry operation panicked
	// while holding the lock and the registry can no longer be trusted
	ErrRegistryLockFailed = errors.New("hook registry is poisoned")
	// ErrUnsupportedArch means hooks cannot be installed on this architecture
	ErrUnsupportedArch = patch.ErrUnsupportedArch
)

// PatternError describes where a signature stopped parsing.
type PatternError struct {
	Signature string
	// Pos is the token index, -1 for an empty signature
	Pos   int
	Token string
}

func (e *PatternError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("malformed pattern %q: empty", e.Signature)
	}
	return fmt.Sprintf("malformed pattern %q: token %d %q", e.Signature, e.Pos, e.Token)
}

func (e *PatternError) Unwrap() error {
	return ErrPatternMalformed
}

// InstallError is returned when the patch itself fails. It matches both
// ErrHookInstallFailed and the underlying cause.
type InstallError struct {
	Target uintptr
	Detour uintptr
	Err    error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("failed to enable hook %#x -> %#x: %v", e.Target, e.Detour, e.Err)
}

func (e *InstallError) Unwrap() []error {
	return []error{ErrHookInstallFailed, e.Err}
}
