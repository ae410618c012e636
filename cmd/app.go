package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/events"
	"prompt-comparator/internal/orchestrator"
	"prompt-comparator/internal/provider"
	providerfactory "prompt-comparator/internal/provider/factory"
	"prompt-comparator/internal/settings"
)

// app is the fully wired comparator shared by serve and ask.
type app struct {
	orch      *orchestrator.Orchestrator
	store     settings.Store
	publisher events.Publisher
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	registry := provider.NewRegistry()
	if err := providerfactory.RegisterAdapters(cfg, registry); err != nil {
		return nil, err
	}

	store, err := settings.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	saved, err := settings.LoadOrDefault(ctx, store, cfg.Providers)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.NatsURL != "" {
		p, err := events.ConnectNATS(cfg.Events.NatsURL, cfg.Events.Subject)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		log.Info().Str("subject", cfg.Events.Subject).Msg("publishing turn events to NATS")
		publisher = p
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Registry:  registry,
		Catalog:   provider.NewCatalogStore(),
		Publisher: publisher,
		Store:     store,
		Settings:  saved,
		Sides:     cfg.Sides,
	})
	if err != nil {
		_ = publisher.Close()
		_ = store.Close()
		return nil, err
	}

	return &app{orch: orch, store: store, publisher: publisher}, nil
}

func (a *app) Close() error {
	a.orch.Wait()
	return errors.Join(a.publisher.Close(), a.store.Close())
}
