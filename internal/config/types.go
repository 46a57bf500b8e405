package config

import (
	"fmt"

	"github.com/fyrsmithlabs/dispatchd/internal/logging"
)

// Config is the full dispatchd configuration.
type Config struct {
	Queue   QueueConfig    `koanf:"queue"`
	Gate    GateConfig     `koanf:"gate"`
	HTTP    HTTPConfig     `koanf:"http"`
	Logging logging.Config `koanf:"logging"`
}

// QueueConfig configures the task store and its snapshot.
type QueueConfig struct {
	// Capacity is the fixed maximum task count.
	Capacity int `koanf:"capacity"`
	// SnapshotPath is where the durable snapshot lives.
	SnapshotPath string `koanf:"snapshot_path"`
	// DebounceMS is the snapshot write-coalescing window in milliseconds.
	DebounceMS int `koanf:"debounce_ms"`
	// TicketDir points at the companion conversation store's ticket
	// directory. When set, restored tasks whose origin ticket is gone
	// are dropped at startup. Empty disables reconciliation.
	TicketDir string `koanf:"ticket_dir"`
}

// GateConfig configures the execution gate.
type GateConfig struct {
	// MaxSessions is the concurrent execution ceiling.
	MaxSessions int `koanf:"max_sessions"`
	// ContextBudget caps directive context text in characters.
	ContextBudget int `koanf:"context_budget"`
}

// HTTPConfig configures the dashboard/ops HTTP server.
type HTTPConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Validate checks the configuration. Invalid startup configuration is
// fatal: the daemon refuses to run in a broken state.
func (c *Config) Validate() error {
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be at least 1, got %d", c.Queue.Capacity)
	}
	if c.Queue.SnapshotPath == "" {
		return fmt.Errorf("queue.snapshot_path is required")
	}
	if c.Queue.DebounceMS < 1 {
		return fmt.Errorf("queue.debounce_ms must be positive, got %d", c.Queue.DebounceMS)
	}
	if c.Gate.MaxSessions < 1 {
		return fmt.Errorf("gate.max_sessions must be at least 1, got %d", c.Gate.MaxSessions)
	}
	if c.Gate.ContextBudget < 1 {
		return fmt.Errorf("gate.context_budget must be positive, got %d", c.Gate.ContextBudget)
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in 1-65535, got %d", c.HTTP.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
