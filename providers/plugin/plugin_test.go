package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/latticectl/lattice/internal/manifest"
)

func TestFactoryWiresKindAndName(t *testing.T) {
	mod := NewModule("demo", nil, time.Second)
	f := Factory("demo", mod, nil)

	r, err := f(manifest.ResourceSpec{
		Kind:       "demo",
		Name:       "widget",
		Properties: map[string]any{"size": "large"},
	})
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	if r.Kind() != "demo" {
		t.Errorf("Kind() = %q, want %q", r.Kind(), "demo")
	}
	if r.Ref() != "demo[widget]" {
		t.Errorf("Ref() = %q, want %q", r.Ref(), "demo[widget]")
	}
}

func TestEvaluateFailsBeforePrefetch(t *testing.T) {
	mod := NewModule("demo", nil, time.Second)
	r := New("demo", "widget", nil, mod, nil)

	if _, err := r.Evaluate(context.Background()); err == nil {
		t.Fatal("expected an error evaluating a plugin resource before Prefetch instantiated the module")
	}
}

func TestProviderNilWhenModuleUnset(t *testing.T) {
	r := New("demo", "widget", nil, nil, nil)
	if r.Provider() != nil {
		t.Error("expected Provider() to be nil when no module is configured")
	}
}
