package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/camwirelab/camwire/internal/camera"
	"github.com/camwirelab/camwire/internal/config"
	"github.com/camwirelab/camwire/internal/service"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "camwire",
	Short: "Camera streaming and recording controller",
	Long: `Camwire drives a Raspberry Pi camera for remote-controlled capture.
It streams H.264 over UDP, records to disk with automatic stop timers,
and takes commands over stdin, a one-shot invocation or a small HTTP API.

Commands use a simple line protocol:

  stream:destination=192.168.1.50:5000,timeout=60
  record:duration=30,filename=take1.mp4
  stop:target=stream
  status`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		// Use the default config path only when the file is actually there;
		// without it, built-in defaults plus CAMWIRE_* variables apply.
		if cfgFile == "" {
			defaultPath := os.ExpandEnv("$HOME/.config/camwire.yaml")
			if _, err := os.Stat(defaultPath); err == nil {
				cfgFile = defaultPath
			}
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/camwire.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(camerasCmd)
	rootCmd.AddCommand(configCmd)
}

// newService wires the process-backed capture device into a fresh service.
func newService() *service.CamwireService {
	dev := camera.NewCaptureDevice(camera.Options{
		CaptureCommand: cfg.Camera.Command,
		FFmpegCommand:  cfg.Encoder.FFmpeg,
		CameraIndex:    cfg.Camera.Index,
		Bitrate:        cfg.Encoder.RecordBitrate,
		IntraPeriod:    cfg.Encoder.IntraPeriod,
		InlineHeaders:  cfg.Encoder.InlineHeaders,
	})
	return service.New(cfg, dev)
}

// setupLogging configures slog based on the verbose level. Logs go to
// stderr so stdout stays reserved for protocol responses.
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}
