// Package settings persists credentials, per-side system prompts and side labels as one JSON blob.
package settings

import (
	"context"
	"fmt"
	"strings"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/models"
)

// StorageKey is the fixed key the settings blob is stored under.
const StorageKey = "prompt-comparator-settings"

const (
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultLabelA       = "Prompt A"
	DefaultLabelB       = "Prompt B"
)

// Settings is the persisted user configuration.
type Settings struct {
	APIKey        string `json:"apiKey" yaml:"-"`
	AnthropicKey  string `json:"anthropicKey" yaml:"-"`
	GoogleKey     string `json:"googleKey" yaml:"-"`
	SystemPromptA string `json:"systemPromptA" yaml:"systemPromptA"`
	SystemPromptB string `json:"systemPromptB" yaml:"systemPromptB"`
	PromptNameA   string `json:"promptNameA" yaml:"promptNameA"`
	PromptNameB   string `json:"promptNameB" yaml:"promptNameB"`
}

// Store loads and saves the settings blob.
type Store interface {
	// Load returns the saved settings and whether anything was saved.
	Load(ctx context.Context) (Settings, bool, error)
	Save(ctx context.Context, s Settings) error
	Close() error
}

// Defaults returns the settings used before anything is saved.
func Defaults() Settings {
	return Settings{
		SystemPromptA: DefaultSystemPrompt,
		SystemPromptB: DefaultSystemPrompt,
		PromptNameA:   DefaultLabelA,
		PromptNameB:   DefaultLabelB,
	}
}

// WithDefaults fills blank labels and prompts. Credentials are left untouched.
func (s Settings) WithDefaults() Settings {
	d := Defaults()
	if strings.TrimSpace(s.SystemPromptA) == "" {
		s.SystemPromptA = d.SystemPromptA
	}
	if strings.TrimSpace(s.SystemPromptB) == "" {
		s.SystemPromptB = d.SystemPromptB
	}
	if strings.TrimSpace(s.PromptNameA) == "" {
		s.PromptNameA = d.PromptNameA
	}
	if strings.TrimSpace(s.PromptNameB) == "" {
		s.PromptNameB = d.PromptNameB
	}
	return s
}

// Credential returns the key configured for id, or "" for an unknown provider.
func (s Settings) Credential(id models.ProviderID) string {
	switch id {
	case models.ProviderOpenAI:
		return s.APIKey
	case models.ProviderAnthropic:
		return s.AnthropicKey
	case models.ProviderGoogle:
		return s.GoogleKey
	}
	return ""
}

// Credentials maps every provider to its key.
func (s Settings) Credentials() map[models.ProviderID]string {
	out := make(map[models.ProviderID]string, len(models.Providers))
	for _, id := range models.Providers {
		out[id] = s.Credential(id)
	}
	return out
}

// SystemPrompt returns the prompt of side.
func (s Settings) SystemPrompt(side models.Side) string {
	if side == models.SideB {
		return s.SystemPromptB
	}
	return s.SystemPromptA
}

// Label returns the display name of side.
func (s Settings) Label(side models.Side) string {
	if side == models.SideB {
		return s.PromptNameB
	}
	return s.PromptNameA
}

// SetSide updates the prompt and label of side.
func (s *Settings) SetSide(side models.Side, systemPrompt, label string) {
	if side == models.SideB {
		s.SystemPromptB, s.PromptNameB = systemPrompt, label
		return
	}
	s.SystemPromptA, s.PromptNameA = systemPrompt, label
}

// Seed fills empty credentials from the providers configuration.
func (s Settings) Seed(cfg config.ProvidersConfig) Settings {
	if s.APIKey == "" {
		s.APIKey = cfg.OpenAI.APIKey
	}
	if s.AnthropicKey == "" {
		s.AnthropicKey = cfg.Anthropic.APIKey
	}
	if s.GoogleKey == "" {
		s.GoogleKey = cfg.Google.APIKey
	}
	return s
}

// Masked hides credentials for display.
func (s Settings) Masked() Settings {
	s.APIKey = Mask(s.APIKey)
	s.AnthropicKey = Mask(s.AnthropicKey)
	s.GoogleKey = Mask(s.GoogleKey)
	return s
}

// Merge keeps prev's credential wherever s carries prev's masked form, so a masked
// document can be edited and saved back.
func (s Settings) Merge(prev Settings) Settings {
	keep := func(next, old string) string {
		if old != "" && next == Mask(old) {
			return old
		}
		return next
	}
	s.APIKey = keep(s.APIKey, prev.APIKey)
	s.AnthropicKey = keep(s.AnthropicKey, prev.AnthropicKey)
	s.GoogleKey = keep(s.GoogleKey, prev.GoogleKey)
	return s
}

// Mask keeps the last four characters of long secrets.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// Set assigns one field by its JSON name.
func (s *Settings) Set(field, value string) error {
	switch field {
	case "apiKey":
		s.APIKey = value
	case "anthropicKey":
		s.AnthropicKey = value
	case "googleKey":
		s.GoogleKey = value
	case "systemPromptA":
		s.SystemPromptA = value
	case "systemPromptB":
		s.SystemPromptB = value
	case "promptNameA":
		s.PromptNameA = value
	case "promptNameB":
		s.PromptNameB = value
	default:
		return fmt.Errorf("unknown settings field %q", field)
	}
	return nil
}

// Open returns the store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreDriverFile:
		return NewFileStore(cfg.Path)
	case config.StoreDriverSQLite:
		return NewSQLiteStore(cfg.Path)
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
}

// LoadOrDefault loads saved settings, or defaults seeded from cfg when nothing was saved.
func LoadOrDefault(ctx context.Context, store Store, cfg config.ProvidersConfig) (Settings, error) {
	s, ok, err := store.Load(ctx)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		return Defaults().Seed(cfg), nil
	}
	return s.WithDefaults(), nil
}
