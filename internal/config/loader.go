// Package config provides configuration loading for dispatchd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// defaultYAML holds the hardcoded defaults. Everything here can be
// overridden by the YAML file and then by environment variables.
var defaultYAML = []byte(`
queue:
  capacity: 50
  debounce_ms: 1000
gate:
  max_sessions: 1
  context_budget: 24000
http:
  host: localhost
  port: 9815
logging:
  level: info
  format: json
`)

// Load builds configuration with the precedence (highest to lowest):
//
//  1. Environment variables (DISPATCHD_QUEUE_CAPACITY, DISPATCHD_GATE_MAX_SESSIONS, ...)
//  2. YAML config file (default: ~/.config/dispatchd/config.yaml)
//  3. Hardcoded defaults
//
// A missing config file is fine; a present but unreadable or invalid one
// is an error. Validation failure aborts startup.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "dispatchd", "config.yaml")
	}

	if content, err := os.ReadFile(configPath); err == nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Environment overrides: DISPATCHD_<SECTION>_<FIELD_NAME>.
	// The section is the first segment; remaining underscores belong to
	// the field name. DISPATCHD_QUEUE_SNAPSHOT_PATH -> queue.snapshot_path.
	if err := k.Load(env.Provider("DISPATCHD_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "DISPATCHD_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills values that have no YAML default because they depend
// on the environment.
func applyDefaults(cfg *Config) {
	if cfg.Queue.SnapshotPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			// Validation reports the empty path; nothing sane to guess here.
			return
		}
		cfg.Queue.SnapshotPath = filepath.Join(home, ".local", "share", "dispatchd", "tasks.json")
	}
}
