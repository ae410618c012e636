package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"prompt-comparator/internal/models"
)

// EnvPrefix is stripped from environment variables before they are mapped onto config keys.
// A double underscore separates nesting levels: COMPARATOR_SERVER__PORT -> server.port.
const EnvPrefix = "COMPARATOR_"

const (
	StoreDriverFile   = "file"
	StoreDriverSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	HTTP      HTTPConfig      `koanf:"http"`
	Providers ProvidersConfig `koanf:"providers"`
	Sides     SidesConfig     `koanf:"sides"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Events    EventsConfig    `koanf:"events"`
	Log       LogConfig       `koanf:"log"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// StoreConfig selects where settings are persisted.
type StoreConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

// HTTPConfig tunes the outbound client shared by all adapters.
type HTTPConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// ProvidersConfig catalogues the upstream vendors.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `koanf:"openai"`
	Anthropic ProviderConfig `koanf:"anthropic"`
	Google    ProviderConfig `koanf:"google"`
}

// For returns the configuration block of id.
func (p ProvidersConfig) For(id models.ProviderID) ProviderConfig {
	switch id {
	case models.ProviderOpenAI:
		return p.OpenAI
	case models.ProviderAnthropic:
		return p.Anthropic
	case models.ProviderGoogle:
		return p.Google
	}
	return ProviderConfig{}
}

// ProviderConfig captures routing info for a vendor. APIKey only seeds the settings
// store when nothing was saved yet.
type ProviderConfig struct {
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
	// RequestsPerMinute throttles sends to the vendor; zero disables throttling.
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// SidesConfig holds the initial provider/model selection of each side.
type SidesConfig struct {
	A SideDefaults `koanf:"a"`
	B SideDefaults `koanf:"b"`
}

// SideDefaults is the startup selection for one side. An empty model means the
// provider's first catalog entry.
type SideDefaults struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
}

// DiscoveryConfig schedules periodic model discovery while serving. Schedule takes
// standard cron syntax or descriptors such as "@every 1h"; empty disables it.
type DiscoveryConfig struct {
	Schedule string `koanf:"schedule"`
}

// EventsConfig enables turn telemetry over NATS when NatsURL is set.
type EventsConfig struct {
	NatsURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":                    8080,
		"store.driver":                   StoreDriverFile,
		"store.path":                     "prompt-comparator-settings.json",
		"http.timeout":                   120 * time.Second,
		"providers.openai.base_url":      "https://api.openai.com/v1",
		"providers.openai.temperature":   0.7,
		"providers.anthropic.base_url":   "https://api.anthropic.com",
		"providers.anthropic.max_tokens": 1024,
		"providers.google.base_url":      "https://generativelanguage.googleapis.com",
		"sides.a.provider":               string(models.ProviderOpenAI),
		"sides.b.provider":               string(models.ProviderOpenAI),
		"events.subject":                 "comparator.turns",
		"log.level":                      "info",
	}
}

// Load layers defaults, an optional YAML (or .toml) file and COMPARATOR_ environment variables,
// then validates the result.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}
		var parser koanf.Parser = yaml.Parser()
		if strings.EqualFold(filepath.Ext(absPath), ".toml") {
			parser = toml.Parser()
		}
		if err := k.Load(file.Provider(absPath), parser); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case StoreDriverFile, StoreDriverSQLite:
	default:
		return fmt.Errorf("store.driver %q must be one of %q or %q", c.Store.Driver, StoreDriverFile, StoreDriverSQLite)
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path must be provided")
	}

	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative, got %s", c.HTTP.Timeout)
	}

	for _, id := range models.Providers {
		if err := validateProvider(id, c.Providers.For(id)); err != nil {
			return err
		}
	}

	sides := map[models.Side]SideDefaults{models.SideA: c.Sides.A, models.SideB: c.Sides.B}
	for side, sc := range sides {
		if !models.ProviderID(sc.Provider).Valid() {
			return fmt.Errorf("sides.%s.provider %q must be one of openai, anthropic or google", side, sc.Provider)
		}
	}

	return nil
}

func validateProvider(id models.ProviderID, provider ProviderConfig) error {
	if strings.TrimSpace(provider.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", id)
	}
	u, err := url.Parse(provider.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("provider %s: base_url %q must be an absolute URL", id, provider.BaseURL)
	}
	if provider.MaxTokens < 0 {
		return fmt.Errorf("provider %s: max_tokens must not be negative", id)
	}
	if provider.Temperature < 0 || provider.Temperature > 2 {
		return fmt.Errorf("provider %s: temperature must be between 0 and 2", id)
	}
	if provider.RequestsPerMinute < 0 {
		return fmt.Errorf("provider %s: requests_per_minute must not be negative", id)
	}
	return nil
}
