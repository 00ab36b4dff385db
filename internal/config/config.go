package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting. Values come from built-in defaults,
// an optional YAML file and CAMWIRE_* environment variables, in that
// order of increasing precedence.
type Config struct {
	Camera  CameraConfig  `mapstructure:"camera" yaml:"camera"`
	Encoder EncoderConfig `mapstructure:"encoder" yaml:"encoder"`
	Stream  StreamConfig  `mapstructure:"stream" yaml:"stream"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

type CameraConfig struct {
	Width   int    `mapstructure:"width" yaml:"width"`
	Height  int    `mapstructure:"height" yaml:"height"`
	Format  string `mapstructure:"format" yaml:"format"`
	Command string `mapstructure:"command" yaml:"command"`
	Index   int    `mapstructure:"index" yaml:"index"`
}

type EncoderConfig struct {
	FFmpeg        string `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	RecordBitrate int    `mapstructure:"record_bitrate" yaml:"record_bitrate"`
	IntraPeriod   int    `mapstructure:"intra_period" yaml:"intra_period"`
	InlineHeaders bool   `mapstructure:"inline_headers" yaml:"inline_headers"`
}

type StreamConfig struct {
	DefaultTimeout int `mapstructure:"default_timeout" yaml:"default_timeout"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

// Load reads the configuration. An empty configFile means defaults plus
// environment only; a configFile that cannot be read is an error.
func Load(configFile string) (*Config, error) {
	// A .env file may supply CAMWIRE_* variables. Missing files are fine.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.format", "yuv420")
	v.SetDefault("camera.command", "rpicam-vid")
	v.SetDefault("camera.index", 0)
	v.SetDefault("encoder.ffmpeg", "ffmpeg")
	v.SetDefault("encoder.record_bitrate", 10000000)
	v.SetDefault("encoder.intra_period", 15)
	v.SetDefault("encoder.inline_headers", true)
	v.SetDefault("stream.default_timeout", 300)
	v.SetDefault("output.directory", "~/Videos/camwire")
	v.SetDefault("server.port", "8080")

	v.SetEnvPrefix("CAMWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for values the rest of the program
// cannot work with.
func (c *Config) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera resolution must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.Format == "" {
		return fmt.Errorf("camera format must not be empty")
	}
	if c.Camera.Command == "" {
		return fmt.Errorf("camera command must not be empty")
	}
	if c.Camera.Index < 0 {
		return fmt.Errorf("camera index must be >= 0, got: %d", c.Camera.Index)
	}
	if c.Encoder.FFmpeg == "" {
		return fmt.Errorf("ffmpeg command must not be empty")
	}
	if c.Encoder.RecordBitrate <= 0 {
		return fmt.Errorf("record bitrate must be > 0, got: %d", c.Encoder.RecordBitrate)
	}
	if c.Encoder.IntraPeriod <= 0 {
		return fmt.Errorf("intra period must be > 0, got: %d", c.Encoder.IntraPeriod)
	}
	if c.Stream.DefaultTimeout <= 0 {
		return fmt.Errorf("default stream timeout must be > 0, got: %d", c.Stream.DefaultTimeout)
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port must be numeric, got: %s", c.Server.Port)
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
