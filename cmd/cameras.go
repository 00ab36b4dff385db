package cmd

import (
	"fmt"

	"github.com/camwirelab/camwire/internal/camera"

	"github.com/spf13/cobra"
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List detected cameras",
	Long:  `List the cameras the capture tool can see on this device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cameras, err := camera.ListCameras(cfg.Camera.Command)
		if err != nil {
			return err
		}

		fmt.Printf("📷 CAMERAS (%d found):\n", len(cameras))
		for i, cam := range cameras {
			fmt.Printf("  %d. %s\n", i+1, cam)
		}

		fmt.Printf("\n💡 Select a camera with camera.index in the config file\n")
		return nil
	},
}
