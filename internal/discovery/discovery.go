// Package discovery fetches live model lists from each vendor and merges them into the catalog.
package discovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
)

// Service lists models through the registered adapters.
type Service struct {
	registry *provider.Registry
	catalog  *provider.CatalogStore
}

// New returns a discovery service publishing into catalog.
func New(registry *provider.Registry, catalog *provider.CatalogStore) *Service {
	return &Service{registry: registry, catalog: catalog}
}

// ListModels returns the vendor's chat models for credential. An empty credential yields an
// empty list without a call. A failed or empty listing yields the built-in list for id; the
// failure is logged and never returned. Only an unknown provider is an error.
func (s *Service) ListModels(ctx context.Context, id models.ProviderID, credential string) ([]models.ModelDescriptor, error) {
	adapter, err := s.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	if credential == "" {
		return []models.ModelDescriptor{}, nil
	}

	list, err := adapter.ListModels(ctx, credential)
	if err != nil {
		log.Warn().
			Err(err).
			Str("provider", string(id)).
			Msg("model discovery failed, using built-in list")
		return provider.DefaultModels(id), nil
	}
	if len(list) == 0 {
		log.Warn().
			Str("provider", string(id)).
			Msg("model discovery returned no chat models, using built-in list")
		return provider.DefaultModels(id), nil
	}

	log.Debug().
		Str("provider", string(id)).
		Int("models", len(list)).
		Msg("model discovery succeeded")
	return list, nil
}

// Refresh lists every provider with a credential concurrently and replaces each provider's
// catalog entry as soon as its listing resolves. Providers without a credential keep their
// current entry.
func (s *Service) Refresh(ctx context.Context, credentials map[models.ProviderID]string) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, id := range models.Providers {
		id := id
		credential := credentials[id]
		if credential == "" {
			continue
		}
		g.Go(func() error {
			list, err := s.ListModels(gctx, id, credential)
			if err != nil {
				return fmt.Errorf("refresh %s models: %w", id, err)
			}
			return s.catalog.Replace(id, list)
		})
	}

	return g.Wait()
}
