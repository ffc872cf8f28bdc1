// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/internal/api"
	"github.com/codeshield-25/codeshield-web/internal/config"
	"github.com/codeshield-25/codeshield-web/internal/observability"
	"github.com/codeshield-25/codeshield-web/internal/service"
)

// newServeCmd creates the `serve` command that hosts the HTTP backend.
func newServeCmd(factory service.ComponentFactory) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP and websocket backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			serverCfg := cfg.Server()
			if cmd.Flags().Changed("listen") {
				serverCfg.ListenAddr, _ = cmd.Flags().GetString("listen")
			}
			return runServe(ctx, observability.GetLogger(), cfg, serverCfg, factory)
		},
	}
	serveCmd.Flags().StringP("listen", "l", "", "Address to listen on, e.g. ':8080'. (Overrides config/env)")
	return serveCmd
}

// runServe builds the components and serves until ctx is cancelled.
func runServe(ctx context.Context, logger *zap.Logger, cfg config.Interface, serverCfg config.ServerConfig, factory service.ComponentFactory) error {
	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize server components: %w", err)
	}
	defer components.Shutdown()

	server, err := api.NewServer(serverCfg, logger, api.Dependencies{
		Engine:   components.Engine,
		Sessions: components.Sessions,
		Teams:    components.Teams,
		Advisor:  components.Advisor,
		Version:  Version,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return server.Start(ctx)
}
