package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"prompt-comparator/internal/settings"
)

func newSettingsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change saved credentials, prompts and labels",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved settings with credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := settings.Open(root.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := settings.LoadOrDefault(cmd.Context(), store, root.cfg.Providers)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s.Masked())
		},
	}

	set := &cobra.Command{
		Use:   "set <field> <value>",
		Short: "Change one setting",
		Long: `Change one setting and save it.

Fields: apiKey, anthropicKey, googleKey, systemPromptA, systemPromptB,
promptNameA, promptNameB. A blank prompt or name resets it to its default.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := settings.Open(root.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			s, err := settings.LoadOrDefault(ctx, store, root.cfg.Providers)
			if err != nil {
				return err
			}
			if err := s.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := store.Save(ctx, s.WithDefaults()); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}
