package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
	anthropicProvider "prompt-comparator/internal/provider/anthropic"
	geminiProvider "prompt-comparator/internal/provider/gemini"
	openaiProvider "prompt-comparator/internal/provider/openai"
)

const (
	defaultHTTPTimeout     = 120 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterAdapters constructs one adapter per supported vendor and stores them in the registry.
func RegisterAdapters(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	timeout := cfg.HTTP.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	openAI, err := openaiProvider.New(cfg.Providers.OpenAI, newHTTPClient(timeout))
	if err != nil {
		return fmt.Errorf("initialise openai adapter: %w", err)
	}
	anthropic, err := anthropicProvider.New(cfg.Providers.Anthropic, newHTTPClient(timeout))
	if err != nil {
		return fmt.Errorf("initialise anthropic adapter: %w", err)
	}
	gemini, err := geminiProvider.New(cfg.Providers.Google, newHTTPClient(timeout))
	if err != nil {
		return fmt.Errorf("initialise google adapter: %w", err)
	}

	for _, a := range []provider.Adapter{openAI, anthropic, gemini} {
		a = provider.RateLimited(a, cfg.Providers.For(a.ID()).RequestsPerMinute)
		if err := registry.Register(a); err != nil {
			return fmt.Errorf("register %s adapter: %w", a.ID(), err)
		}
	}

	for _, id := range models.Providers {
		if _, err := registry.Lookup(id); err != nil {
			return fmt.Errorf("provider %s has no adapter: %w", id, err)
		}
	}
	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
