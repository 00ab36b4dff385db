package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "camwire.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Camera.Width != 640 || cfg.Camera.Height != 480 {
		t.Errorf("Expected default resolution 640x480, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Camera.Format != "yuv420" {
		t.Errorf("Expected default format yuv420, got: %s", cfg.Camera.Format)
	}
	if cfg.Camera.Command != "rpicam-vid" {
		t.Errorf("Expected default capture command rpicam-vid, got: %s", cfg.Camera.Command)
	}
	if cfg.Stream.DefaultTimeout != 300 {
		t.Errorf("Expected default stream timeout 300, got: %d", cfg.Stream.DefaultTimeout)
	}
	if cfg.Encoder.RecordBitrate != 10000000 {
		t.Errorf("Expected default record bitrate 10000000, got: %d", cfg.Encoder.RecordBitrate)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got: %s", cfg.Server.Port)
	}
	if strings.HasPrefix(cfg.Output.Directory, "~") {
		t.Errorf("Expected tilde expanded in output directory, got: %s", cfg.Output.Directory)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
camera:
  width: 1280
  height: 720
stream:
  default_timeout: 60
output:
  directory: /data/camwire
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Camera.Width != 1280 || cfg.Camera.Height != 720 {
		t.Errorf("Expected resolution 1280x720, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Stream.DefaultTimeout != 60 {
		t.Errorf("Expected timeout 60, got: %d", cfg.Stream.DefaultTimeout)
	}
	if cfg.Output.Directory != "/data/camwire" {
		t.Errorf("Expected output directory /data/camwire, got: %s", cfg.Output.Directory)
	}

	// Untouched keys keep their defaults.
	if cfg.Camera.Format != "yuv420" {
		t.Errorf("Expected default format to survive partial config, got: %s", cfg.Camera.Format)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CAMWIRE_CAMERA_FORMAT", "rgb888")
	t.Setenv("CAMWIRE_STREAM_DEFAULT_TIMEOUT", "45")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Camera.Format != "rgb888" {
		t.Errorf("Expected env format rgb888, got: %s", cfg.Camera.Format)
	}
	if cfg.Stream.DefaultTimeout != 45 {
		t.Errorf("Expected env timeout 45, got: %d", cfg.Stream.DefaultTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/camwire.yaml")
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "error reading config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "negative width",
			content: "camera:\n  width: -1\n",
			wantErr: "resolution",
		},
		{
			name:    "zero bitrate",
			content: "encoder:\n  record_bitrate: 0\n",
			wantErr: "bitrate",
		},
		{
			name:    "negative timeout",
			content: "stream:\n  default_timeout: -5\n",
			wantErr: "timeout",
		},
		{
			name:    "non-numeric port",
			content: "server:\n  port: camera\n",
			wantErr: "port must be numeric",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)

			_, err := Load(path)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("No home directory: %v", err)
	}

	if got := expandPath("~/Videos"); got != filepath.Join(home, "Videos") {
		t.Errorf("Expected home-relative path expanded, got: %s", got)
	}
	if got := expandPath("/data/camwire"); got != "/data/camwire" {
		t.Errorf("Expected absolute path unchanged, got: %s", got)
	}
}
