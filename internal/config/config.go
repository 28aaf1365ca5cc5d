// Package config holds the engine's on-disk settings: storage paths,
// connection limits, and scheduler timing, following the teacher's
// Default()/Validate()/Ensure() JSON-config pattern.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/petervdpas/conversation-engine/internal/util"
)

// Config is the engine's full settings tree.
type Config struct {
	Storage   Storage   `json:"storage"`
	Scheduler Scheduler `json:"scheduler"`
}

// Storage locates the persistence database and the files directory that
// backs file-bearing descriptors (spec.md §4.1, §6.1).
type Storage struct {
	DatabasePath string `json:"database_path"`
	FilesDir     string `json:"files_dir"`
}

// Scheduler tunes the connection manager and backoff behavior of
// spec.md §4.5. BackoffSeconds overrides the default backoff table
// entry by entry; an empty slice falls back to DefaultBackoffSeconds.
type Scheduler struct {
	MaxActiveConnectionsForeground int   `json:"max_active_connections_foreground"`
	MaxActiveConnectionsBackground int   `json:"max_active_connections_background"`
	IdleTimeoutForegroundSec       int   `json:"idle_timeout_foreground_seconds"`
	IdleTimeoutBackgroundSec       int   `json:"idle_timeout_background_seconds"`
	IdleCheckIntervalSec           int   `json:"idle_check_interval_seconds"`
	DelayAfterOnlineMillis         int   `json:"delay_after_online_millis"`
	BackoffSeconds                 []int `json:"backoff_seconds,omitempty"`
}

// DefaultBackoffSeconds is the backoff table of spec.md §4.5: 20s, 30s,
// 4min, 16min, 32min, 60min, 120min.
var DefaultBackoffSeconds = []int{20, 30, 4 * 60, 16 * 60, 32 * 60, 60 * 60, 120 * 60}

// Default returns the engine's built-in settings.
func Default() Config {
	return Config{
		Storage: Storage{
			DatabasePath: "data/conversations.db",
			FilesDir:     "data/files",
		},
		Scheduler: Scheduler{
			MaxActiveConnectionsForeground: 16,
			MaxActiveConnectionsBackground: 8,
			IdleTimeoutForegroundSec:       120,
			IdleTimeoutBackgroundSec:       5,
			IdleCheckIntervalSec:           5,
			DelayAfterOnlineMillis:         500,
		},
	}
}

// Validate checks Config for internally consistent, usable values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DatabasePath) == "" {
		return errors.New("storage.database_path is required")
	}
	if c.Scheduler.MaxActiveConnectionsForeground <= 0 {
		return errors.New("scheduler.max_active_connections_foreground must be > 0")
	}
	if c.Scheduler.MaxActiveConnectionsBackground <= 0 {
		return errors.New("scheduler.max_active_connections_background must be > 0")
	}
	if c.Scheduler.MaxActiveConnectionsBackground > c.Scheduler.MaxActiveConnectionsForeground {
		return errors.New("scheduler.max_active_connections_background must not exceed the foreground limit")
	}
	if c.Scheduler.IdleTimeoutForegroundSec <= 0 || c.Scheduler.IdleTimeoutBackgroundSec <= 0 {
		return errors.New("scheduler idle timeouts must be > 0")
	}
	if c.Scheduler.IdleCheckIntervalSec <= 0 {
		return errors.New("scheduler.idle_check_interval_seconds must be > 0")
	}
	if len(c.Scheduler.BackoffSeconds) > 0 {
		for i, s := range c.Scheduler.BackoffSeconds {
			if s <= 0 {
				return errors.New("scheduler.backoff_seconds entries must be > 0")
			}
			if i > 0 && s < c.Scheduler.BackoffSeconds[i-1] {
				return errors.New("scheduler.backoff_seconds must be non-decreasing")
			}
		}
	}
	return nil
}

// Backoff returns the configured backoff table, or DefaultBackoffSeconds
// when the config doesn't override it.
func (c *Config) Backoff() []int {
	if len(c.Scheduler.BackoffSeconds) > 0 {
		return c.Scheduler.BackoffSeconds
	}
	return DefaultBackoffSeconds
}

// Load reads and validates a Config from path, starting from Default()
// so any field the JSON omits keeps its built-in value.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save validates cfg and writes it to path as formatted JSON.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads the config at path if it exists, otherwise creates one
// from Default(). Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}
	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}
