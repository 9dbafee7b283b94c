package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Backend selects the codec implementation.
type Backend string

const (
	BackendStd  Backend = "std"
	BackendVips Backend = "vips"
)

// Config is the top-level configuration struct.  Zero values fall back to
// Default() where noted so callers can override only what they need.
type Config struct {
	// Number of items ProcessAll may transform at once.  1 keeps the batch
	// strictly sequential.
	Concurrency int `yaml:"concurrency"`

	// Streaming / memory limits.
	MaxImageBytes int64 `yaml:"max_image_bytes"` // 0 = no limit
	ChunkSize     int   `yaml:"chunk_size"`      // streaming chunk size in bytes; default 32 KiB

	// Codecs.
	Backend Backend    `yaml:"backend"`
	Vips    VipsConfig `yaml:"vips"`

	// Per-tool encode quality (0.1-1.0) for tools without their own
	// quality setting.
	Quality QualityConfig `yaml:"quality"`

	// Outer surfaces.
	HTTPAddr  string `yaml:"http_addr"`
	OutputDir string `yaml:"output_dir"` // local delivery target; empty disables
	InboxDir  string `yaml:"inbox_dir"`  // watched acquisition folder; empty disables
	InboxTool string `yaml:"inbox_tool"` // session fed by the inbox

	LogLevel string `yaml:"log_level"` // "debug", "info", "warn", "error"
}

// VipsConfig configures the libvips backend.
type VipsConfig struct {
	MaxCacheSize int  `yaml:"max_cache_size"`
	MaxWorkers   int  `yaml:"max_workers"`
	ReportLeaks  bool `yaml:"report_leaks"`
}

// QualityConfig holds the encode quality used by each geometric tool.
type QualityConfig struct {
	Resize  float64 `yaml:"resize"`
	Crop    float64 `yaml:"crop"`
	Convert float64 `yaml:"convert"`
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		Concurrency: 1,
		ChunkSize:   32 * 1024,
		Backend:     BackendStd,
		Quality: QualityConfig{
			Resize:  0.95,
			Crop:    0.95,
			Convert: 0.92,
		},
		HTTPAddr:  ":8080",
		InboxTool: "compress",
		LogLevel:  "info",
	}
}

// Load reads a YAML file on top of Default().  A missing file yields the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.Concurrency < 1 {
		return errors.New("config: Concurrency must be at least 1")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.MaxImageBytes < 0 {
		return errors.New("config: MaxImageBytes must not be negative")
	}
	switch c.Backend {
	case BackendStd, BackendVips:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	for name, q := range map[string]float64{
		"resize":  c.Quality.Resize,
		"crop":    c.Quality.Crop,
		"convert": c.Quality.Convert,
	} {
		if q < 0.1 || q > 1 {
			return fmt.Errorf("config: Quality.%s must be between 0.1 and 1.0", name)
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}
