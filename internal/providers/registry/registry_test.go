package registry

import (
	"errors"
	"testing"

	"workbench/internal/providers"
)

func TestBuildKnownProviders(t *testing.T) {
	for _, name := range []string{"openai", "anthropic", "minimax", "local_runtime"} {
		p, err := Build(BuildOptions{Provider: name, BaseURL: "https://example.com", APIKey: "k"})
		if err != nil {
			t.Fatalf("build %s: %v", name, err)
		}
		if p.Name() != name {
			t.Fatalf("provider %s reports name %q", name, p.Name())
		}
	}
}

func TestBuildUnsupported(t *testing.T) {
	_, err := Build(BuildOptions{Provider: "bard"})
	if !errors.Is(err, providers.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
