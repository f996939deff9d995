package catalog_test

import (
	"testing"

	"github.com/zhouzirui/smolvqa/backend/internal/model/catalog"
)

func TestResolveExact(t *testing.T) {
	store := catalog.NewMemoryStore(catalog.Seed())

	tier := store.Resolve("500M")
	if tier.ModelID != "HuggingFaceTB/SmolVLM2-500M-Video-Instruct" {
		t.Fatalf("unexpected model id: %s", tier.ModelID)
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	store := catalog.NewMemoryStore(catalog.Seed())

	tier := store.Resolve("2.2b")
	if tier.ModelID != "HuggingFaceTB/SmolVLM2-2.2B-Instruct" {
		t.Fatalf("unexpected model id: %s", tier.ModelID)
	}
}

func TestResolveAlias(t *testing.T) {
	store := catalog.NewMemoryStore(catalog.Seed())

	if got := store.Resolve("1B").ModelID; got != "HuggingFaceTB/SmolVLM2-2.2B-Instruct" {
		t.Fatalf("1B alias resolved to %s", got)
	}
}

func TestResolveSubstring(t *testing.T) {
	store := catalog.NewMemoryStore(catalog.Seed())

	// "256M-fast" is not an exact tier name but contains one.
	if got := store.Resolve("256M-fast").Size; got != "256M" {
		t.Fatalf("substring match resolved to %s", got)
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	store := catalog.NewMemoryStore(catalog.Seed())

	if got := store.Resolve("enormous").Size; got != catalog.DefaultSize {
		t.Fatalf("expected default tier, got %s", got)
	}
	if got := store.Resolve("").Size; got != catalog.DefaultSize {
		t.Fatalf("expected default tier for empty size, got %s", got)
	}
}
