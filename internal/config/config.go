// Package config provides configuration loading for taskd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/task"
)

// Config is the root configuration shared by the daemon and the CLI.
type Config struct {
	Vault   VaultConfig    `koanf:"vault"`
	Daemon  DaemonConfig   `koanf:"daemon"`
	Server  ServerConfig   `koanf:"server"`
	Tasks   TasksConfig    `koanf:"tasks"`
	Logging logging.Config `koanf:"logging"`
}

// VaultConfig locates the task file tree.
type VaultConfig struct {
	// Root is the directory holding the status folders.
	Root string `koanf:"root"`

	// SkipCorrupt makes listings warn and skip unreadable task files.
	SkipCorrupt bool `koanf:"skip_corrupt"`
}

// DaemonConfig configures the daemon client used by front ends.
type DaemonConfig struct {
	// Enabled selects daemon-preferred mode. When false, the vault is
	// the only backend and the daemon is never contacted.
	Enabled bool `koanf:"enabled"`

	// URL is the daemon base URL.
	URL string `koanf:"url"`

	// Timeout bounds each daemon request.
	Timeout Duration `koanf:"timeout"`
}

// ServerConfig configures the taskd HTTP server.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// RateLimit is the per-client request rate (requests/second).
	RateLimit float64 `koanf:"rate_limit"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// TasksConfig holds task lifecycle defaults.
type TasksConfig struct {
	// DefaultStatus is assigned to created tasks with no explicit
	// status.
	DefaultStatus string `koanf:"default_status"`
}

// applyDefaults fills in zero values after file and env loading.
func applyDefaults(cfg *Config) {
	if cfg.Vault.Root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Vault.Root = filepath.Join(home, "TaskVault")
		}
	}
	if cfg.Daemon.URL == "" {
		cfg.Daemon.URL = fmt.Sprintf("http://localhost:%d", defaultPort)
	}
	if cfg.Daemon.Timeout == 0 {
		cfg.Daemon.Timeout = Duration(5 * time.Second)
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 50
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Tasks.DefaultStatus == "" {
		cfg.Tasks.DefaultStatus = string(task.StatusInbox)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

const defaultPort = 7432

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	if c.Vault.Root == "" {
		return fmt.Errorf("vault.root is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("server.rate_limit must be positive")
	}
	if _, err := task.ParseStatus(c.Tasks.DefaultStatus); err != nil {
		return fmt.Errorf("tasks.default_status: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}

// DefaultStatus returns the validated default task status.
func (c *Config) DefaultStatus() task.Status {
	s, err := task.ParseStatus(c.Tasks.DefaultStatus)
	if err != nil {
		return task.StatusInbox
	}
	return s
}
