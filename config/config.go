// Package config holds the engine tuning knobs. Values load from a YAML
// file over the compiled-in defaults; durations are expressed in
// milliseconds (or seconds where noted) to keep the file format plain.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RemoteBaseURL string `yaml:"remote_base_url"`
	FeedURL       string `yaml:"feed_url"`
	CanvasDBFile  string `yaml:"canvas_db_file"`

	GridWidth  int `yaml:"grid_width"`
	GridHeight int `yaml:"grid_height"`
	CellScale  int `yaml:"cell_scale"` // rasterized pixels per canvas cell

	MemoryTTLSeconds int `yaml:"memory_ttl_seconds"`

	BatchSize    int `yaml:"batch_size"`
	BatchDelayMs int `yaml:"batch_delay_ms"`

	ImmediateHead    int `yaml:"immediate_head"`
	ImmediateWorkers int `yaml:"immediate_workers"`
	DeferredChunk    int `yaml:"deferred_chunk"`
	DeferredWorkers  int `yaml:"deferred_workers"`
	IdleDelayMs      int `yaml:"idle_delay_ms"`

	SettleDelayMs  int `yaml:"settle_delay_ms"`
	RepaintDelayMs int `yaml:"repaint_delay_ms"`

	PreserveContentSeconds int `yaml:"preserve_content_seconds"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RemoteBaseURL: "http://localhost:8080",
		FeedURL:       "ws://localhost:8080/feed",
		CanvasDBFile:  "canvases.db",

		GridWidth:  16,
		GridHeight: 16,
		CellScale:  8,

		MemoryTTLSeconds: 30,

		BatchSize:    10,
		BatchDelayMs: 250,

		ImmediateHead:    60,
		ImmediateWorkers: 6,
		DeferredChunk:    12,
		DeferredWorkers:  3,
		IdleDelayMs:      500,

		SettleDelayMs:  50,
		RepaintDelayMs: 120,

		PreserveContentSeconds: 90,
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error;
// the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.GridWidth <= 0 || c.GridHeight <= 0 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", c.GridWidth, c.GridHeight)
	}
	if c.CellScale <= 0 {
		return fmt.Errorf("cell_scale must be positive, got %d", c.CellScale)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.ImmediateWorkers <= 0 || c.DeferredWorkers <= 0 {
		return fmt.Errorf("worker counts must be positive")
	}
	return nil
}

func (c Config) MemoryTTL() time.Duration {
	return time.Duration(c.MemoryTTLSeconds) * time.Second
}

func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMs) * time.Millisecond
}

func (c Config) IdleDelay() time.Duration {
	return time.Duration(c.IdleDelayMs) * time.Millisecond
}

func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

func (c Config) RepaintDelay() time.Duration {
	return time.Duration(c.RepaintDelayMs) * time.Millisecond
}

func (c Config) PreserveContentWindow() time.Duration {
	return time.Duration(c.PreserveContentSeconds) * time.Second
}
