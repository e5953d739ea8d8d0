// Package config loads the trust core's node-level settings from a YAML
// document: a flat struct with yaml tags, defaults applied after
// unmarshal.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config describes the on-disk settings a trust-core node reads at
// startup: where to keep the badger database, which root-set mode to
// query by default, and the two tunables the actor and persistence
// layers expose.
type Config struct {
	DataDir            string `yaml:"dataDir"`
	RootSetMode        string `yaml:"rootSetMode"` // "mainIdentity" or "all"
	ActorQueueDepth    int    `yaml:"actorQueueDepth"`
	MinimumFreeSpaceGB int    `yaml:"minimumFreeSpaceGB"`
}

// Load reads and parses the YAML document at path, applying defaults to
// any zero-valued field.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "./trustcore-data"
	}
	if cfg.RootSetMode == "" {
		cfg.RootSetMode = "mainIdentity"
	}
	if cfg.ActorQueueDepth == 0 {
		cfg.ActorQueueDepth = 1024
	}
	if cfg.MinimumFreeSpaceGB == 0 {
		cfg.MinimumFreeSpaceGB = 1
	}
}
