package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nguyennamkkb/Simpleverse-home/config"
)

func TestDefaultIsValid(t *testing.T) {
	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero concurrency", func(c *config.Config) { c.Concurrency = 0 }},
		{"zero chunk", func(c *config.Config) { c.ChunkSize = 0 }},
		{"negative limit", func(c *config.Config) { c.MaxImageBytes = -1 }},
		{"unknown backend", func(c *config.Config) { c.Backend = "magick" }},
		{"quality too low", func(c *config.Config) { c.Quality.Crop = 0.05 }},
		{"quality too high", func(c *config.Config) { c.Quality.Convert = 1.5 }},
		{"bad log level", func(c *config.Config) { c.LogLevel = "trace" }},
	}
	for _, tc := range tests {
		cfg := config.Default()
		tc.mutate(&cfg)
		if err := config.Validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simpleverse.yaml")
	body := []byte("concurrency: 3\nbackend: std\nquality:\n  convert: 0.8\nlog_level: debug\noutput_dir: /tmp/out\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("concurrency: got %d, want 3", cfg.Concurrency)
	}
	if cfg.Quality.Convert != 0.8 {
		t.Errorf("convert quality: got %v, want 0.8", cfg.Quality.Convert)
	}
	// Untouched keys keep their defaults.
	if cfg.Quality.Resize != 0.95 {
		t.Errorf("resize quality: got %v, want 0.95", cfg.Quality.Resize)
	}
	if cfg.ChunkSize != 32*1024 {
		t.Errorf("chunk size: got %d", cfg.ChunkSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != config.Default() {
		t.Error("missing file should yield defaults")
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("concurrency: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency != 2 || cfg.InboxTool != "compress" || cfg.Vips.MaxWorkers != 4 {
		t.Errorf("unexpected example config: %+v", cfg)
	}
}
