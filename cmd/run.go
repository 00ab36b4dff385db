package cmd

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/camwirelab/camwire/internal/command"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the interactive command session",
	Long: `Read protocol commands from stdin and write one JSON response per line
to stdout. Type 'exit' or send SIGINT/SIGTERM to stop; the camera is
released on the way out.

Use --command to execute a command before the loop starts, for example to
begin streaming immediately:

  camwire run --command "stream:destination=192.168.1.50:5000"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := newService()
		defer func() {
			if err := svc.Shutdown(); err != nil {
				slog.Error("Shutdown failed", "error", err)
			}
		}()

		if err := svc.Init(); err != nil {
			slog.Warn("Camera not ready at startup, will retry on first command", "error", err)
		}

		timeout := time.Duration(cfg.Stream.DefaultTimeout) * time.Second
		router := command.NewRouter(svc, timeout)
		enc := json.NewEncoder(os.Stdout)

		if initial, _ := cmd.Flags().GetString("command"); initial != "" {
			if err := enc.Encode(router.Execute(initial)); err != nil {
				return err
			}
		}

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		slog.Info("Interactive session started")
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					slog.Info("Input closed, shutting down")
					return nil
				}
				trimmed := strings.TrimSpace(line)
				if trimmed == "" {
					continue
				}
				if strings.EqualFold(trimmed, "exit") {
					slog.Info("Exit requested")
					return nil
				}
				if err := enc.Encode(router.Execute(line)); err != nil {
					return err
				}
			case sig := <-sigChan:
				slog.Info("Signal received, shutting down", "signal", sig)
				return nil
			}
		}
	},
}

func init() {
	runCmd.Flags().String("command", "", "execute this command before entering the loop")
}
