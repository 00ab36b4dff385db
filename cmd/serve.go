package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camwirelab/camwire/internal/metrics"
	"github.com/camwirelab/camwire/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the Camwire web server to control streaming and recording over
HTTP from any device on the network. The server exposes the same commands
as the interactive session plus recordings, history and Prometheus
metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Server.Port = port
		}

		svc := newService()
		// Warm up the camera so the first request does not pay for it. A
		// failure here is not fatal; the session retries on first use.
		if err := svc.Init(); err != nil {
			slog.Warn("Camera not ready at startup, will retry on first command", "error", err)
		}

		srv := server.New(svc, metrics.New())

		errChan := make(chan error, 1)
		go func() {
			errChan <- srv.Start()
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case sig := <-sigChan:
			slog.Info("Signal received, shutting down", "signal", sig)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
		if err := svc.Shutdown(); err != nil {
			slog.Error("Session shutdown failed", "error", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the web server (overrides config)")
}
