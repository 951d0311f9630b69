package remotefile

import (
	"testing"

	"github.com/latticectl/lattice/internal/manifest"
)

func TestFactoryRequiresPath(t *testing.T) {
	f := Factory(nil, nil)
	_, err := f(manifest.ResourceSpec{Kind: "remotefile", Name: "motd"})
	if err == nil {
		t.Fatal("expected an error when properties.path is missing")
	}
}

func TestFactoryBuildsResourceWithDefaults(t *testing.T) {
	f := Factory(nil, nil)
	r, err := f(manifest.ResourceSpec{
		Kind:       "remotefile",
		Name:       "motd",
		Properties: map[string]any{"path": "/etc/motd", "content": "hello"},
	})
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	if r.Ref() != "remotefile[motd]" {
		t.Errorf("Ref() = %q, want %q", r.Ref(), "remotefile[motd]")
	}
}

func TestChecksumDeterministic(t *testing.T) {
	a := checksum("hello")
	b := checksum("hello")
	c := checksum("world")
	if a != b {
		t.Error("checksum should be deterministic for identical content")
	}
	if a == c {
		t.Error("checksum should differ for different content")
	}
}

func TestConfigAddressDefaultsPort(t *testing.T) {
	cfg := Config{Host: "example.internal"}
	if cfg.Address() != "example.internal:22" {
		t.Errorf("Address() = %q, want %q", cfg.Address(), "example.internal:22")
	}
}

func TestClientErrorsBeforePrefetch(t *testing.T) {
	conn := NewConnection(Config{Host: "example.internal"}, nil)
	if _, err := conn.client(); err == nil {
		t.Fatal("expected an error calling client() before Prefetch has dialed")
	}
}
