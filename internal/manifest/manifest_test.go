package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/latticectl/lattice/internal/change"
	"github.com/latticectl/lattice/internal/resource"
)

type stubResource struct {
	evaluated bool
}

func (s *stubResource) Kind() string      { return "" }
func (s *stubResource) Name() string      { return "" }
func (s *stubResource) Ref() string       { return "" }
func (s *stubResource) Parent() string    { return "" }
func (s *stubResource) IsContainer() bool { return false }

func (s *stubResource) BuildDepends() []resource.Relation               { return nil }
func (s *stubResource) Autorequire(resource.Lookup) []resource.Relation { return nil }
func (s *stubResource) Tagged([]string) bool                            { return true }
func (s *stubResource) Scheduled() bool                                 { return true }

func (s *stubResource) Evaluate(ctx context.Context) ([]*change.Change, error) {
	s.evaluated = true
	return nil, nil
}

func (s *stubResource) Debug(string)   {}
func (s *stubResource) Info(string)    {}
func (s *stubResource) Notice(string)  {}
func (s *stubResource) Warning(string) {}
func (s *stubResource) Err(string)     {}

func stubFactory(spec ResourceSpec) (resource.Resource, error) {
	return &stubResource{}, nil
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadYAMLAndBuildProducesResources(t *testing.T) {
	path := writeManifest(t, `
workspace:
  name: demo
resources:
  - kind: file
    name: a
    properties: {"path": "/etc/a"}
  - kind: file
    name: b
    depends:
      - kind: require
        target: "file:a"
`)

	m, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if len(m.Resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(m.Resources))
	}

	reg := NewRegistry()
	reg.Register("file", stubFactory)

	resources, err := Build(m, reg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("expected 2 built resources, got %d", len(resources))
	}

	if resources[0].Ref() != "file[a]" {
		t.Errorf("resources[0].Ref() = %q, want file[a]", resources[0].Ref())
	}
	deps := resources[1].BuildDepends()
	if len(deps) != 1 || deps[0].Target != "file[a]" {
		t.Fatalf("resources[1].BuildDepends() = %+v, want a single require on file[a]", deps)
	}
}

func TestBuildUnknownKindFails(t *testing.T) {
	path := writeManifest(t, `
workspace:
  name: demo
resources:
  - kind: mystery
    name: x
`)
	m, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}

	reg := NewRegistry()
	if _, err := Build(m, reg); err == nil {
		t.Fatal("expected Build to fail for an unregistered kind")
	}
}

func TestBuildUndeclaredDependencyFails(t *testing.T) {
	path := writeManifest(t, `
workspace:
  name: demo
resources:
  - kind: file
    name: a
    depends:
      - kind: require
        target: "file:missing"
`)
	m, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}

	reg := NewRegistry()
	reg.Register("file", stubFactory)
	if _, err := Build(m, reg); err == nil {
		t.Fatal("expected Build to fail for a dependency on an undeclared resource")
	}
}

func TestLoadYAMLMissingRequiredFieldFailsValidation(t *testing.T) {
	path := writeManifest(t, `
workspace:
  name: demo
resources:
  - kind: file
`)
	m, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}

	reg := NewRegistry()
	reg.Register("file", stubFactory)
	if _, err := Build(m, reg); err == nil {
		t.Fatal("expected Build to fail validation for a resource missing a required name")
	}
}
