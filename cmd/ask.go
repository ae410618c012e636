package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"prompt-comparator/internal/export"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/orchestrator"
	"prompt-comparator/internal/render"
)

type askOptions struct {
	sideA, sideB     string
	promptA, promptB string
	exportPath       string
	format           string
	width            int
	refresh          bool
}

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message to both sides and print the answers",
		Long: `Send one user message to both sides concurrently and print the two
conversations next to each other.

A side can be pointed at another provider or model with provider[:model],
for example --side-b anthropic:claude-sonnet-4-5. Prompt overrides apply to
this run only.`,
		Example: `  prompt-comparator ask "Summarize TCP slow start"
  prompt-comparator ask --side-b google --prompt-b "Answer as a pirate." "hello"
  prompt-comparator ask --export out.xlsx "Compare these prompts"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn().Err(err).Msg("cleanup failed")
				}
			}()

			if opts.refresh {
				if err := a.orch.RefreshCatalog(ctx); err != nil {
					log.Warn().Err(err).Msg("model discovery failed, using static catalog")
				}
			}
			if err := opts.apply(a.orch); err != nil {
				return err
			}

			outcomes, err := a.orch.SendToBoth(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			for _, o := range outcomes {
				if o.Err != nil {
					log.Warn().Str("side", o.Side.String()).Err(o.Err).Msg("side did not send")
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), render.SideBySide(opts.width, panes(a.orch.State())...))

			if opts.exportPath != "" {
				path, err := opts.writeExport(a.orch, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.sideA, "side-a", "", "Provider and optional model for side A (provider[:model])")
	cmd.Flags().StringVar(&opts.sideB, "side-b", "", "Provider and optional model for side B (provider[:model])")
	cmd.Flags().StringVar(&opts.promptA, "prompt-a", "", "System prompt override for side A")
	cmd.Flags().StringVar(&opts.promptB, "prompt-b", "", "System prompt override for side B")
	cmd.Flags().StringVarP(&opts.exportPath, "export", "o", "", "Write the comparison to a file or directory")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Export format (csv, xlsx, json, yaml); inferred from the file extension when empty")
	cmd.Flags().IntVarP(&opts.width, "width", "w", 120, "Output width in columns")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "Discover models before sending")
	return cmd
}

func (o *askOptions) apply(orch *orchestrator.Orchestrator) error {
	for _, sel := range []struct {
		side   models.Side
		target string
		prompt string
	}{
		{models.SideA, o.sideA, o.promptA},
		{models.SideB, o.sideB, o.promptB},
	} {
		if sel.target != "" {
			id, model, _ := strings.Cut(sel.target, ":")
			if err := orch.SetProvider(sel.side, models.ProviderID(strings.ToLower(id))); err != nil {
				return fmt.Errorf("side %s: %w", sel.side, err)
			}
			if model != "" {
				if err := orch.SetModel(sel.side, model); err != nil {
					return fmt.Errorf("side %s: %w", sel.side, err)
				}
			}
		}
		if sel.prompt != "" {
			if err := orch.SetSystemPrompt(sel.side, sel.prompt); err != nil {
				return fmt.Errorf("side %s: %w", sel.side, err)
			}
		}
	}
	return nil
}

// writeExport writes to exportPath, or into it with the generated file name when it is a directory.
func (o *askOptions) writeExport(orch *orchestrator.Orchestrator, now time.Time) (string, error) {
	path := o.exportPath
	info, statErr := os.Stat(path)
	isDir := statErr == nil && info.IsDir()

	raw := o.format
	if raw == "" && !isDir {
		raw = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	if raw == "" {
		raw = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		return "", err
	}

	file, err := orch.Export(format, now)
	if err != nil {
		return "", err
	}
	if isDir {
		path = filepath.Join(path, file.Name)
	}
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func panes(states []orchestrator.SideState) []render.Pane {
	out := make([]render.Pane, 0, len(states))
	for _, st := range states {
		out = append(out, render.Pane{
			Title:     st.Config.Label,
			Subtitle:  st.Config.Provider.DisplayName() + " / " + st.Config.Model,
			Messages:  st.History,
			Pending:   st.Pending,
			LastError: st.LastError,
		})
	}
	return out
}
