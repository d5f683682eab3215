package livepatch

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Manifest lists the modules, signatures and interfaces a build depends
// on. The same file drives Session.InstallManifest and the offline
// sigcheck tool.
//
//	modules: [client, engine2]
//	signatures:
//	  - name: create_move
//	    module: client
//	    pattern: 48 8B C4 4C 89 48 20 55
//	interfaces:
//	  - name: Source2EngineToClient001
//	    module: engine2
type Manifest struct {
	Modules    []string            `yaml:"modules"`
	Signatures []ManifestSignature `yaml:"signatures"`
	Interfaces []ManifestInterface `yaml:"interfaces"`
}

// ManifestSignature names a function located by pattern.
type ManifestSignature struct {
	Name    string `yaml:"name"`
	Module  string `yaml:"module"`
	Pattern string `yaml:"pattern"`
}

// ManifestInterface names an object created by a module's factory.
type ManifestInterface struct {
	Name   string `yaml:"name"`
	Module string `yaml:"module"`
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return m, nil
}

// ParseManifest decodes and validates a manifest. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	m := &Manifest{}
	if err := dec.Decode(m); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode manifest")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that names are unique, every entry refers to a declared
// module and every pattern parses.
func (m *Manifest) Validate() error {
	if len(m.Modules) == 0 {
		return errors.New("no modules declared")
	}
	modules := make(map[string]bool, len(m.Modules))
	for _, name := range m.Modules {
		if name == "" {
			return errors.New("empty module name")
		}
		if modules[name] {
			return errors.Errorf("module %s declared twice", name)
		}
		modules[name] = true
	}

	seen := make(map[string]bool, len(m.Signatures))
	for i, s := range m.Signatures {
		if s.Name == "" {
			return errors.Errorf("signature %d has no name", i)
		}
		if seen[s.Name] {
			return errors.Errorf("signature %s declared twice", s.Name)
		}
		seen[s.Name] = true
		if !modules[s.Module] {
			return errors.Errorf("signature %s: undeclared module %q", s.Name, s.Module)
		}
		if _, err := ParsePattern(s.Pattern); err != nil {
			return errors.Wrapf(err, "signature %s", s.Name)
		}
	}

	type key struct{ module, name string }
	ifaces := make(map[key]bool, len(m.Interfaces))
	for _, in := range m.Interfaces {
		if in.Name == "" {
			return errors.Errorf("interface in %s has no name", in.Module)
		}
		if !modules[in.Module] {
			return errors.Errorf("interface %s: undeclared module %q", in.Name, in.Module)
		}
		k := key{in.Module, in.Name}
		if ifaces[k] {
			return errors.Errorf("interface %s declared twice in %s", in.Name, in.Module)
		}
		ifaces[k] = true
	}
	return nil
}

// HookSpecs pairs each signature with the detour registered under its
// name. Signatures without a detour are left out.
func (m *Manifest) HookSpecs(detours map[string]uintptr) []HookSpec {
	specs := make([]HookSpec, 0, len(m.Signatures))
	for _, s := range m.Signatures {
		detour, ok := detours[s.Name]
		if !ok {
			continue
		}
		specs = append(specs, HookSpec{
			Name:      s.Name,
			Module:    s.Module,
			Signature: s.Pattern,
			Detour:    detour,
		})
	}
	return specs
}
