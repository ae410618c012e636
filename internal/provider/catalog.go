package provider

import (
	"fmt"
	"sync/atomic"

	"prompt-comparator/internal/models"
)

var defaultModels = map[models.ProviderID][]models.ModelDescriptor{
	models.ProviderOpenAI: {
		{ID: "o1-preview", DisplayName: "OpenAI o1 Preview"},
		{ID: "o1-mini", DisplayName: "OpenAI o1 Mini"},
		{ID: "gpt-4o", DisplayName: "GPT-4o"},
		{ID: "gpt-4o-mini", DisplayName: "GPT-4o Mini"},
		{ID: "gpt-4-turbo", DisplayName: "GPT-4 Turbo"},
	},
	models.ProviderAnthropic: {
		{ID: "claude-opus-4-6", DisplayName: "Claude Opus 4.6"},
		{ID: "claude-sonnet-4-5-20250929", DisplayName: "Claude Sonnet 4.5"},
		{ID: "claude-haiku-4-5-20251001", DisplayName: "Claude Haiku 4.5"},
	},
	models.ProviderGoogle: {
		{ID: "gemini-3.0-pro", DisplayName: "Gemini 3.0 Pro"},
		{ID: "gemini-3.0-flash", DisplayName: "Gemini 3.0 Flash"},
		{ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro"},
		{ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash"},
		{ID: "gemini-2.5-flash-lite", DisplayName: "Gemini 2.5 Flash-Lite"},
	},
}

// DefaultModels returns a copy of the built-in model list for id.
func DefaultModels(id models.ProviderID) []models.ModelDescriptor {
	return cloneModels(defaultModels[id])
}

// Catalog is an immutable snapshot of the selectable models per provider.
type Catalog struct {
	entries map[models.ProviderID]models.CatalogEntry
}

// DefaultCatalog builds a snapshot from the built-in model lists.
func DefaultCatalog() *Catalog {
	entries := make(map[models.ProviderID]models.CatalogEntry, len(models.Providers))
	for _, id := range models.Providers {
		entries[id] = models.CatalogEntry{
			Provider:    id,
			DisplayName: id.DisplayName(),
			Models:      DefaultModels(id),
		}
	}
	return &Catalog{entries: entries}
}

// Entry returns a copy of the entry for id.
func (c *Catalog) Entry(id models.ProviderID) (models.CatalogEntry, error) {
	entry, ok := c.entries[id]
	if !ok {
		return models.CatalogEntry{}, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	entry.Models = cloneModels(entry.Models)
	return entry, nil
}

// Entries returns copies of every entry in provider display order.
func (c *Catalog) Entries() []models.CatalogEntry {
	out := make([]models.CatalogEntry, 0, len(c.entries))
	for _, id := range models.Providers {
		if entry, err := c.Entry(id); err == nil {
			out = append(out, entry)
		}
	}
	return out
}

// FirstModel returns the first model listed for id.
func (c *Catalog) FirstModel(id models.ProviderID) (string, error) {
	entry, ok := c.entries[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return entry.Models[0].ID, nil
}

// HasModel reports whether modelID is listed for id.
func (c *Catalog) HasModel(id models.ProviderID, modelID string) bool {
	for _, m := range c.entries[id].Models {
		if m.ID == modelID {
			return true
		}
	}
	return false
}

// withModels returns a new snapshot where id's models are replaced. An empty list keeps the
// current entry so a provider never ends up without models.
func (c *Catalog) withModels(id models.ProviderID, list []models.ModelDescriptor) *Catalog {
	entries := make(map[models.ProviderID]models.CatalogEntry, len(c.entries))
	for k, v := range c.entries {
		entries[k] = v
	}
	if len(list) > 0 {
		entries[id] = models.CatalogEntry{
			Provider:    id,
			DisplayName: id.DisplayName(),
			Models:      cloneModels(list),
		}
	}
	return &Catalog{entries: entries}
}

// CatalogStore publishes catalog snapshots. Readers always observe a complete snapshot.
type CatalogStore struct {
	current atomic.Pointer[Catalog]
}

// NewCatalogStore starts from the built-in catalog.
func NewCatalogStore() *CatalogStore {
	s := &CatalogStore{}
	s.current.Store(DefaultCatalog())
	return s
}

// Snapshot returns the current catalog.
func (s *CatalogStore) Snapshot() *Catalog {
	return s.current.Load()
}

// Replace swaps in a new snapshot with id's model list replaced wholesale.
func (s *CatalogStore) Replace(id models.ProviderID, list []models.ModelDescriptor) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	for {
		old := s.current.Load()
		next := old.withModels(id, list)
		if s.current.CompareAndSwap(old, next) {
			return nil
		}
	}
}

func cloneModels(in []models.ModelDescriptor) []models.ModelDescriptor {
	if in == nil {
		return nil
	}
	out := make([]models.ModelDescriptor, len(in))
	copy(out, in)
	return out
}
