package camera

import (
	"fmt"
	"os/exec"
	"strings"
)

// ListCameras asks the capture binary for the cameras it can see and
// returns one line per camera.
func ListCameras(captureCommand string) ([]string, error) {
	if captureCommand == "" {
		captureCommand = "rpicam-vid"
	}

	cmd := exec.Command(captureCommand, "--list-cameras")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}

	return parseCameraList(string(output)), nil
}

// parseCameraList filters the --list-cameras output down to the camera
// entry lines, dropping the banner and mode detail lines.
func parseCameraList(output string) []string {
	var cameras []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "Available cameras") {
			continue
		}
		// Camera entries start with an index like "0 :"; everything else
		// is mode detail.
		if !startsWithDigit(trimmed) {
			continue
		}
		cameras = append(cameras, trimmed)
	}
	return cameras
}

func startsWithDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}
