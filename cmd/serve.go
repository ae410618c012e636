package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"prompt-comparator/internal/discovery"
	"prompt-comparator/internal/server"
)

const scheduledRefreshTimeout = 2 * time.Minute

func newServeCmd(root *rootOptions) *cobra.Command {
	var overridePort int
	var refresh bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if overridePort != 0 {
				if overridePort < 0 || overridePort > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
				}
				cfg.Server.Port = overridePort
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn().Err(err).Msg("shutdown cleanup failed")
				}
			}()

			if refresh {
				if err := a.orch.RefreshCatalog(ctx); err != nil {
					log.Warn().Err(err).Msg("model discovery failed, serving static catalog")
				}
			}

			if cfg.Discovery.Schedule != "" {
				sched, err := discovery.NewScheduler(cfg.Discovery.Schedule, scheduledRefreshTimeout, a.orch.RefreshCatalog)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			srv, err := server.New(cfg, a.orch)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&overridePort, "port", "p", 0, "Override server port from configuration")
	cmd.Flags().BoolVar(&refresh, "refresh", true, "Discover models for every configured credential at startup")
	return cmd
}
