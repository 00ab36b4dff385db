package cmd

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/camwirelab/camwire/internal/command"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec [command-line]",
	Short: "Execute a single protocol command",
	Long: `Execute one protocol command, print its JSON response on stdout and
exit. The camera session ends with the process, so anything started here
is stopped again on the way out; this is mostly useful for status and
stop:

  camwire exec status
  camwire exec "stop:target=all"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := newService()
		defer func() {
			if err := svc.Shutdown(); err != nil {
				slog.Error("Shutdown failed", "error", err)
			}
		}()

		if err := svc.Init(); err != nil {
			slog.Warn("Camera not ready, command may fail", "error", err)
		}

		timeout := time.Duration(cfg.Stream.DefaultTimeout) * time.Second
		router := command.NewRouter(svc, timeout)

		return json.NewEncoder(os.Stdout).Encode(router.Execute(args[0]))
	},
}
