package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadbot/cli/internal/server"
)

var serveAddr string

// serveCmd runs the chat-event HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept chat events over HTTP",
	Long: `The serve command starts the HTTP server that chat integrations post events to:

  POST /v1/events/command   {"user_id": "...", "text": "..."}
  POST /v1/events/confirm   {"user_id": "...", "command_id": "..."}
  POST /v1/events/cancel    {"user_id": "...", "command_id": "..."}

It also serves /healthz and Prometheus metrics on /metrics. Pending commands
are kept in memory and expire after the configured confirmation window.
Set LEADBOT_SERVER_TOKEN to require a bearer token on /v1 routes.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, appConfig)
		if err != nil {
			if notLoggedIn(err) {
				mustLogin()
			}
			return err
		}
		defer a.close()

		if verbose {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
		addr := appConfig.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		router := server.New(a.svc, server.Options{Token: appConfig.Server.Token}, logger.Named("http"))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.Run(gctx, addr, router, logger)
		})
		g.Go(func() error {
			return a.store.Run(gctx, appConfig.Store.SweepInterval.Std(), func(n int) {
				logger.Debug("expired commands swept", zap.Int("count", n))
			})
		})

		err = g.Wait()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		logger.Info("leadbot stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}
