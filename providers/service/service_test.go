package service

import (
	"testing"

	"github.com/latticectl/lattice/internal/manifest"
)

func TestFactoryRejectsInvalidEnsure(t *testing.T) {
	f := Factory(nil)
	_, err := f(manifest.ResourceSpec{
		Kind:       "service",
		Name:       "nginx",
		Properties: map[string]any{"ensure": "paused"},
	})
	if err == nil {
		t.Fatal("expected an error for an invalid ensure value")
	}
}

func TestFactoryDefaultsNameFromSpec(t *testing.T) {
	f := Factory(nil)
	r, err := f(manifest.ResourceSpec{Kind: "service", Name: "nginx"})
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	if r.Name() != "nginx" {
		t.Errorf("Name() = %q, want %q", r.Name(), "nginx")
	}
}

func TestCallbackExposesRestartAndReload(t *testing.T) {
	r := New("nginx", Properties{Ensure: "running"}, nil)

	if _, ok := r.Callback("restart"); !ok {
		t.Error("expected a \"restart\" callback")
	}
	if _, ok := r.Callback("reload"); !ok {
		t.Error("expected a \"reload\" callback")
	}
	if _, ok := r.Callback("frobnicate"); ok {
		t.Error("expected no callback for an unknown name")
	}
}

func TestRefAndKind(t *testing.T) {
	r := New("nginx", Properties{}, nil)
	if r.Ref() != "service[nginx]" {
		t.Errorf("Ref() = %q, want %q", r.Ref(), "service[nginx]")
	}
	if r.Kind() != "service" {
		t.Errorf("Kind() = %q, want %q", r.Kind(), "service")
	}
}
