//go:build !amd64

package patch

// Apply is only implemented for amd64.
func Apply(target, detour uintptr) (*Patch, error) {
	return nil, ErrUnsupportedArch
}
