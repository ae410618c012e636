package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"prompt-comparator/internal/discovery"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
	providerfactory "prompt-comparator/internal/provider/factory"
	"prompt-comparator/internal/render"
	"prompt-comparator/internal/settings"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "models [provider]",
		Short: "List selectable models per provider",
		Long: `List the models each provider offers. Without --refresh the built-in
list is shown; with --refresh every provider that has a saved credential is
queried and falls back to the built-in list on failure.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(models.ProviderOpenAI), string(models.ProviderAnthropic), string(models.ProviderGoogle)},
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := listModels(cmd.Context(), root, refresh)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				id := models.ProviderID(args[0])
				filtered := entries[:0]
				for _, e := range entries {
					if e.Provider == id {
						filtered = append(filtered, e)
					}
				}
				if len(filtered) == 0 {
					return fmt.Errorf("%w: %s", provider.ErrUnknownProvider, id)
				}
				entries = filtered
			}
			fmt.Fprint(cmd.OutOrStdout(), render.Catalog(entries))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "Query the providers instead of showing the built-in list")
	return cmd
}

func listModels(ctx context.Context, root *rootOptions, refresh bool) ([]models.CatalogEntry, error) {
	catalog := provider.NewCatalogStore()
	if !refresh {
		return catalog.Snapshot().Entries(), nil
	}

	registry := provider.NewRegistry()
	if err := providerfactory.RegisterAdapters(root.cfg, registry); err != nil {
		return nil, err
	}

	store, err := settings.Open(root.cfg.Store)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	saved, err := settings.LoadOrDefault(ctx, store, root.cfg.Providers)
	if err != nil {
		return nil, err
	}

	if err := discovery.New(registry, catalog).Refresh(ctx, saved.Credentials()); err != nil {
		return nil, err
	}
	return catalog.Snapshot().Entries(), nil
}
