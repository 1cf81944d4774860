// Package config loads engine configuration from YAML files and supplies
// the defaults used when no file is given.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/viant/vecshard/engine"
)

// Config holds every tunable of the engine. Zero fields fall back to the
// defaults from Default.
type Config struct {
	// DataDir is the directory holding shard database files.
	DataDir string `yaml:"data_dir"`

	// Durability is one of fast, balanced, durable.
	Durability string `yaml:"durability"`

	CacheSizePages int   `yaml:"cache_size_pages"`
	MmapSize       int64 `yaml:"mmap_size"`
	BusyTimeoutMS  int   `yaml:"busy_timeout_ms"`

	// HotSetCapacity bounds shards open at once.
	HotSetCapacity int `yaml:"hot_set_capacity"`
	// QueueDepth bounds callers waiting for a hot-set slot.
	QueueDepth int `yaml:"queue_depth"`

	// SyncBatchSize bounds records per sync batch.
	SyncBatchSize int `yaml:"sync_batch_size"`
	// SyncCompress enables zstd compression of sync batch frames.
	SyncCompress bool `yaml:"sync_compress"`

	// NormSensitivity widens or narrows search norm pruning.
	NormSensitivity float32 `yaml:"norm_sensitivity"`
	// FullScanFraction switches search to a full scan when the norm
	// window covers at least this fraction of the index.
	FullScanFraction float64 `yaml:"full_scan_fraction"`
}

// Default returns the stock configuration.
func Default() *Config {
	eng := engine.DefaultOptions()
	return &Config{
		DataDir:          "data",
		Durability:       string(engine.DurabilityBalanced),
		CacheSizePages:   eng.CacheSizePages,
		MmapSize:         eng.MmapSize,
		BusyTimeoutMS:    eng.BusyTimeoutMS,
		HotSetCapacity:   256,
		QueueDepth:       64,
		SyncBatchSize:    512,
		SyncCompress:     true,
		NormSensitivity:  0.3,
		FullScanFraction: 0.5,
	}
}

// Load reads a YAML configuration file. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if !engine.DurabilityMode(c.Durability).Valid() {
		return fmt.Errorf("config: unknown durability %q", c.Durability)
	}
	if c.NormSensitivity < 0 {
		return fmt.Errorf("config: norm_sensitivity must not be negative")
	}
	if c.FullScanFraction < 0 || c.FullScanFraction > 1 {
		return fmt.Errorf("config: full_scan_fraction must be in [0, 1]")
	}
	return nil
}

// EngineOptions maps the configuration onto SQLite tuning options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Durability:     engine.DurabilityMode(c.Durability),
		CacheSizePages: c.CacheSizePages,
		MmapSize:       c.MmapSize,
		BusyTimeoutMS:  c.BusyTimeoutMS,
	}
}
