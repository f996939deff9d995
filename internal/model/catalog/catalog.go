package catalog

import "strings"

// Tier describes one selectable model size exposed to the frontend.
type Tier struct {
	Size        string `json:"size"`
	ModelID     string `json:"modelId"`
	Description string `json:"description,omitempty"`
}

// DefaultSize is used when MODEL_SIZE is unset or matches nothing.
const DefaultSize = "256M"

// Seed provides the supported SmolVLM2 size tiers. The 1B and 2B entries
// alias the 2.2B checkpoint, matching the published model lineup.
func Seed() []Tier {
	return []Tier{
		{
			Size:        "256M",
			ModelID:     "HuggingFaceTB/SmolVLM2-256M-Video-Instruct",
			Description: "Smallest checkpoint, CPU-friendly, fastest responses.",
		},
		{
			Size:        "500M",
			ModelID:     "HuggingFaceTB/SmolVLM2-500M-Video-Instruct",
			Description: "Mid-size checkpoint, better grounding than 256M.",
		},
		{
			Size:        "2.2B",
			ModelID:     "HuggingFaceTB/SmolVLM2-2.2B-Instruct",
			Description: "Largest checkpoint, best answer quality.",
		},
		{Size: "1B", ModelID: "HuggingFaceTB/SmolVLM2-2.2B-Instruct"},
		{Size: "2B", ModelID: "HuggingFaceTB/SmolVLM2-2.2B-Instruct"},
	}
}

// Store exposes tier lookup for configuration and HTTP handlers.
type Store interface {
	List() []Tier
	Resolve(size string) Tier
}

// MemoryStore implements Store with a fixed in-memory tier list.
type MemoryStore struct {
	items []Tier
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied tiers.
func NewMemoryStore(items []Tier) *MemoryStore {
	return &MemoryStore{items: append([]Tier(nil), items...)}
}

// List returns the predefined tier list.
func (s *MemoryStore) List() []Tier {
	return append([]Tier(nil), s.items...)
}

// Resolve maps a named size to its tier: exact match first, then a
// substring match either way, then the default tier. Resolution happens
// once at startup, never per request.
func (s *MemoryStore) Resolve(size string) Tier {
	key := strings.ToUpper(strings.TrimSpace(size))

	for _, item := range s.items {
		if strings.ToUpper(item.Size) == key {
			return item
		}
	}

	if key != "" {
		for _, item := range s.items {
			upper := strings.ToUpper(item.Size)
			if strings.Contains(key, upper) || strings.Contains(upper, key) {
				return item
			}
		}
	}

	for _, item := range s.items {
		if item.Size == DefaultSize {
			return item
		}
	}
	return Tier{}
}
