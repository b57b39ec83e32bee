// Package config loads shadecheck settings from YAML and provides defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	Camera struct {
		// Source selects the frame source: "ffmpeg" for a live device, "dir" to replay images
		Source string `yaml:"source"`

		// Device is the capture device handed to ffmpeg (e.g. /dev/video0)
		Device string `yaml:"device"`

		// InputFormat is the ffmpeg demuxer for the device (v4l2, avfoundation, dshow)
		InputFormat string `yaml:"inputFormat"`

		// FFmpeg is the ffmpeg binary to run
		FFmpeg string `yaml:"ffmpeg"`

		// ProbeWidth is the width probe frames are scaled down to
		ProbeWidth int `yaml:"probeWidth"`

		// CaptureDir is where final captures are written
		CaptureDir string `yaml:"captureDir"`

		// ReplayDir holds the images served by the "dir" source
		ReplayDir string `yaml:"replayDir"`
	} `yaml:"camera"`

	// Timing values are Go duration strings ("950ms", "1.6s")
	Timing struct {
		ProbeReady     string  `yaml:"probeReady"`
		ProbeAdjust    string  `yaml:"probeAdjust"`
		InFlightWait   string  `yaml:"inFlightWait"`
		InFlightPoll   string  `yaml:"inFlightPoll"`
		Settle         string  `yaml:"settle"`
		RetryBackoff   string  `yaml:"retryBackoff"`
		Attempts       int     `yaml:"attempts"`
		ProbeQuality   float64 `yaml:"probeQuality"`
		CaptureQuality float64 `yaml:"captureQuality"`
	} `yaml:"timing"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`

	Sink struct {
		// Store records every hand-off in Postgres
		Store bool `yaml:"store"`

		// AzureContainer enables blob upload of the final capture when set
		AzureContainer string `yaml:"azureContainer"`
	} `yaml:"sink"`
}

// Durations is the parsed form of the timing section.
type Durations struct {
	ProbeReady   time.Duration
	ProbeAdjust  time.Duration
	InFlightWait time.Duration
	InFlightPoll time.Duration
	Settle       time.Duration
	RetryBackoff time.Duration
}

// Default returns a configuration with default values
func Default() *Config {
	cfg := &Config{}

	cfg.Camera.Source = "ffmpeg"
	cfg.Camera.Device = "/dev/video0"
	cfg.Camera.InputFormat = "v4l2"
	cfg.Camera.FFmpeg = "ffmpeg"
	cfg.Camera.ProbeWidth = 320
	cfg.Camera.CaptureDir = filepath.Join(os.TempDir(), "shadecheck")

	cfg.Timing.ProbeReady = "1700ms"
	cfg.Timing.ProbeAdjust = "950ms"
	cfg.Timing.InFlightWait = "1600ms"
	cfg.Timing.InFlightPoll = "50ms"
	cfg.Timing.Settle = "150ms"
	cfg.Timing.RetryBackoff = "250ms"
	cfg.Timing.Attempts = 3
	cfg.Timing.ProbeQuality = 0.35
	cfg.Timing.CaptureQuality = 1.0

	cfg.Log.Level = "info"

	return cfg
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a session.
func (c *Config) Validate() error {
	switch c.Camera.Source {
	case "ffmpeg", "dir":
	default:
		return fmt.Errorf("invalid camera source '%s'. Must be 'ffmpeg' or 'dir'", c.Camera.Source)
	}
	if c.Camera.Source == "dir" && c.Camera.ReplayDir == "" {
		return fmt.Errorf("camera source 'dir' requires camera.replayDir")
	}
	if c.Camera.ProbeWidth < 16 {
		return fmt.Errorf("camera.probeWidth must be >= 16, got %d", c.Camera.ProbeWidth)
	}
	if c.Timing.Attempts < 1 {
		return fmt.Errorf("timing.attempts must be >= 1, got %d", c.Timing.Attempts)
	}
	if c.Timing.ProbeQuality <= 0 || c.Timing.ProbeQuality > 1 {
		return fmt.Errorf("timing.probeQuality must be between 0.0 and 1.0, got %f", c.Timing.ProbeQuality)
	}
	if c.Timing.CaptureQuality <= 0 || c.Timing.CaptureQuality > 1 {
		return fmt.Errorf("timing.captureQuality must be between 0.0 and 1.0, got %f", c.Timing.CaptureQuality)
	}
	_, err := c.Durations()
	return err
}

// Durations parses the timing strings.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"probeReady", c.Timing.ProbeReady, &d.ProbeReady},
		{"probeAdjust", c.Timing.ProbeAdjust, &d.ProbeAdjust},
		{"inFlightWait", c.Timing.InFlightWait, &d.InFlightWait},
		{"inFlightPoll", c.Timing.InFlightPoll, &d.InFlightPoll},
		{"settle", c.Timing.Settle, &d.Settle},
		{"retryBackoff", c.Timing.RetryBackoff, &d.RetryBackoff},
	} {
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return Durations{}, fmt.Errorf("invalid timing.%s format (use '950ms', '1.6s'): %w", f.name, err)
		}
		if v < 0 {
			return Durations{}, fmt.Errorf("timing.%s must not be negative", f.name)
		}
		*f.dst = v
	}
	if d.InFlightPoll == 0 {
		return Durations{}, fmt.Errorf("timing.inFlightPoll must be > 0")
	}
	return d, nil
}
