package livepatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleManifest = `
modules: [client, engine2]
signatures:
  - name: create_move
    module: client
    pattern: 48 8B C4 4C 89 48 20 55
  - name: level_init
    module: client
    pattern: 40 55 ?? 56
interfaces:
  - name: Source2EngineToClient001
    module: engine2
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)
	require.Equal(t, []string{"client", "engine2"}, m.Modules)
	require.Equal(t, ManifestSignature{Name: "level_init", Module: "client", Pattern: "40 55 ?? 56"}, m.Signatures[1])
	require.Equal(t, []ManifestInterface{{Name: "Source2EngineToClient001", Module: "engine2"}}, m.Interfaces)
}

func TestParseManifestInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", ``, "no modules"},
		{"unknown key", "modules: [client]\nhooks: []\n", "field hooks not found"},
		{"duplicate module", "modules: [client, client]\n", "declared twice"},
		{"undeclared module", "modules: [client]\nsignatures:\n  - {name: a, module: server, pattern: '90'}\n", "undeclared module"},
		{"duplicate signature", "modules: [client]\nsignatures:\n  - {name: a, module: client, pattern: '90'}\n  - {name: a, module: client, pattern: '91'}\n", "signature a declared twice"},
		{"bad pattern", "modules: [client]\nsignatures:\n  - {name: a, module: client, pattern: '9'}\n", "malformed pattern"},
		{"unnamed interface", "modules: [client]\ninterfaces:\n  - {module: client}\n", "has no name"},
		{"duplicate interface", "modules: [client]\ninterfaces:\n  - {name: X, module: client}\n  - {name: X, module: client}\n", "interface X declared twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.doc))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseManifestBadPattern(t *testing.T) {
	_, err := ParseManifest([]byte("modules: [client]\nsignatures:\n  - {name: a, module: client, pattern: '?'}\n"))
	require.ErrorIs(t, err, ErrPatternMalformed)
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signatures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o600))
	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Signatures, 2)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestManifestHookSpecs(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)
	specs := m.HookSpecs(map[string]uintptr{"create_move": 0x9000})
	require.Equal(t, []HookSpec{{
		Name:      "create_move",
		Module:    "client",
		Signature: "48 8B C4 4C 89 48 20 55",
		Detour:    0x9000,
	}}, specs)
}
