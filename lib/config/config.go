// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Parallax
// components.
//
// Configuration is loaded from a single YAML file specified by the
// PARALLAX_CONFIG environment variable or a --config flag. There are
// no fallbacks or automatic discovery — this keeps configuration
// deterministic and auditable with no hidden overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "PARALLAX_CONFIG"

// Config is the configuration for the VR manager daemon.
type Config struct {
	// RuntimeDir holds sockets and other per-boot state. The
	// vrmanager socket lives at <RuntimeDir>/vrmanager.sock and
	// listener service sockets under <RuntimeDir>/listener/.
	RuntimeDir string `yaml:"runtime_dir"`

	// StateDir holds persistent state: the token signing keypair,
	// per-user settings files, and the permission flag store.
	StateDir string `yaml:"state_dir"`

	// PackageManifest is the path of the installed-package manifest
	// (JSONC). The package index reloads it on demand.
	PackageManifest string `yaml:"package_manifest"`

	// ModeHook is the command invoked when the device-wide VR mode
	// flag flips, with "on" or "off" appended as the final argument.
	// Empty disables the hook.
	ModeHook []string `yaml:"mode_hook"`

	// DBusAnnounce enables re-publishing mode changes as a D-Bus
	// signal on the session bus.
	DBusAnnounce bool `yaml:"dbus_announce"`

	// LogLevel is one of "debug", "info", "warn", "error".
	// Defaults to "info".
	LogLevel string `yaml:"log_level"`
}

// Load reads and validates a config file. When path is empty, the
// PARALLAX_CONFIG environment variable is consulted.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return nil, fmt.Errorf("no config file: pass --config or set %s", EnvVar)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RuntimeDir == "" {
		c.RuntimeDir = "/run/parallax"
	}
	if c.StateDir == "" {
		c.StateDir = "/var/lib/parallax"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks field contents. Called by Load; exported for
// callers that construct a Config directly.
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.RuntimeDir) {
		return fmt.Errorf("runtime_dir %q must be absolute", c.RuntimeDir)
	}
	if !filepath.IsAbs(c.StateDir) {
		return fmt.Errorf("state_dir %q must be absolute", c.StateDir)
	}
	if c.PackageManifest == "" {
		return fmt.Errorf("package_manifest is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: must be debug, info, warn, or error", c.LogLevel)
	}
	return nil
}

// SlogLevel maps the validated log_level string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SocketPath returns the vrmanager socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.RuntimeDir, "vrmanager.sock")
}

// ListenerSocketDir returns the directory where listener services
// expose their sockets, one per user and package.
func (c *Config) ListenerSocketDir() string {
	return filepath.Join(c.RuntimeDir, "listener")
}

// SettingsDir returns the directory of per-user settings files.
func (c *Config) SettingsDir() string {
	return filepath.Join(c.StateDir, "settings")
}

// PermissionsDir returns the directory of per-user permission flag
// files.
func (c *Config) PermissionsDir() string {
	return filepath.Join(c.StateDir, "permissions")
}
