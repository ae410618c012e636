package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/logging"
)

var version = "dev"

type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "prompt-comparator",
		Short: "Compare two LLM system prompts side by side",
		Long: `Send the same user message to two independently configured assistants
and compare their answers.

Each side has its own provider (OpenAI, Anthropic or Google Gemini), model,
system prompt and label. Conversations can be exported as CSV, XLSX, JSON
or YAML.

Quick Start:
  prompt-comparator ask "Explain DNS"            # Ask both sides once
  prompt-comparator models --refresh             # Discover available models
  prompt-comparator settings set apiKey sk-...   # Save a credential
  prompt-comparator serve                        # Start the HTTP API`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before configuration")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newModelsCmd(opts),
		newSettingsCmd(opts),
	)
	return cmd
}

func (o *rootOptions) setup() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		return err
	}
	logging.SetVerbose(o.verbose)

	o.cfg = cfg
	return nil
}

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
