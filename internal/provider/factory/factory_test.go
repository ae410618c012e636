package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
)

func TestRegisterAdaptersCoversEveryProvider(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	registry := provider.NewRegistry()
	require.NoError(t, RegisterAdapters(cfg, registry))

	for _, id := range models.Providers {
		a, err := registry.Lookup(id)
		require.NoError(t, err)
		assert.Equal(t, id, a.ID())
	}

	assert.Error(t, RegisterAdapters(cfg, registry), "second registration must fail")
}

func TestRegisterAdaptersRejectsBadConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Providers.Google.BaseURL = ""

	assert.Error(t, RegisterAdapters(cfg, provider.NewRegistry()))
	assert.Error(t, RegisterAdapters(cfg, nil))
}

func TestNewHTTPClientTimeout(t *testing.T) {
	c := newHTTPClient(5 * time.Second)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.NotNil(t, c.Transport)
}
