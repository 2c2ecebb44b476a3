// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/chatbridge/internal/api"
	"github.com/xkilldash9x/chatbridge/internal/browser"
	"github.com/xkilldash9x/chatbridge/internal/config"
	"github.com/xkilldash9x/chatbridge/internal/observability"
	"github.com/xkilldash9x/chatbridge/internal/ratelimit"
	"github.com/xkilldash9x/chatbridge/internal/selectors"
)

const shutdownGracePeriod = 15 * time.Second

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Launches the browser session and serves the HTTP API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			registry, err := selectors.NewRegistry(cfg.Selectors.Path, logger)
			if err != nil {
				return err
			}
			if cfg.Selectors.Watch {
				if err := registry.Watch(ctx); err != nil {
					return err
				}
			}

			governor := ratelimit.NewGovernor(cfg.Rate.RequestsPerMinute, cfg.Rate.MinInterval)

			// The browser outlives the signal context; shutdown is explicit
			// so in-flight requests drain before Chrome goes away.
			driver, err := browser.NewChromeDriver(context.Background(), cfg.Browser, cfg.Typing, logger)
			if err != nil {
				return fmt.Errorf("failed to launch browser: %w", err)
			}

			controller := browser.NewController(cfg, registry, governor, driver, logger)
			if err := controller.Start(ctx); err != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
				defer cancel()
				controller.Shutdown(shutdownCtx)
				return fmt.Errorf("failed to start session controller: %w", err)
			}

			server := api.NewServer(cfg.Server, controller, Version, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(server.ListenAndServe)
			g.Go(func() error {
				<-gctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Warn("HTTP shutdown did not complete cleanly.", zap.Error(err))
				}
				return controller.Shutdown(shutdownCtx)
			})

			logger.Info("Bridge running. Log in through the browser window if prompted.",
				zap.String("state", string(controller.StatusSnapshot(ctx).State)))
			return g.Wait()
		},
	}

	serveCmd.Flags().Bool("headless", false, "run the browser headless (requires a persisted login)")
	serveCmd.Flags().Int("port", 8765, "HTTP listen port")
	return serveCmd
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
