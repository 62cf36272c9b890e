// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for nested or headless runs on a workstation.
	Development Environment = "development"
	// Production is for a server driving real displays.
	Production Environment = "production"
)

// Config is the master configuration for the display server.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// SocketPath is where clients connect with the tab protocol.
	SocketPath string `yaml:"socket_path"`

	// ControlSocket is where shiftctl connects. Empty disables it.
	ControlSocket string `yaml:"control_socket"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Sessions SessionsConfig `yaml:"sessions"`
	Admin    AdminConfig    `yaml:"admin"`
	Journal  JournalConfig  `yaml:"journal"`
	Layout   LayoutConfig   `yaml:"layout"`
	DRM      DRMConfig      `yaml:"drm"`

	// VirtualMonitors are present from startup regardless of hardware.
	VirtualMonitors []VirtualMonitor `yaml:"virtual_monitors"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	LogLevel string          `yaml:"log_level,omitempty"`
	Sessions *SessionsConfig `yaml:"sessions,omitempty"`
	DRM      *DRMConfig      `yaml:"drm,omitempty"`
}

// SessionsConfig configures session lifetimes.
type SessionsConfig struct {
	// LoadingGrace is how long an authenticated session may stay in
	// Loading before it is consumed. Zero disables the timer.
	LoadingGrace time.Duration `yaml:"loading_grace"`

	// TokenTTL is how long a minted token stays redeemable.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// SweepInterval is how often expired tokens are collected.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// AdminConfig configures the admin session minted at startup.
type AdminConfig struct {
	// Client is spawned with SHIFT_SESSION_TOKEN set.
	Client string   `yaml:"client"`
	Args   []string `yaml:"args"`

	// TokenFile receives the admin token, readable only by the owner,
	// when no Client is configured. With neither set an admin session
	// can still be minted over the control socket.
	TokenFile string `yaml:"token_file"`

	// DisplayName labels the admin session.
	DisplayName string `yaml:"display_name"`
}

// JournalConfig configures the lifecycle journal.
type JournalConfig struct {
	// Path is the SQLite database. Empty disables the journal.
	Path string `yaml:"path"`
}

// LayoutConfig configures monitor placement.
type LayoutConfig struct {
	// Profile is a JSONC layout profile. Empty means automatic layout.
	Profile string `yaml:"profile"`
}

// DRMConfig configures connector discovery.
type DRMConfig struct {
	Enabled      bool          `yaml:"enabled"`
	SysfsRoot    string        `yaml:"sysfs_root"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// VirtualMonitor describes a monitor that exists without hardware.
type VirtualMonitor struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	RefreshRate int    `yaml:"refresh_rate"`
}

// Default returns the default configuration. It describes a headless
// development server with one virtual monitor.
func Default() *Config {
	return &Config{
		Environment:   Development,
		SocketPath:    "${XDG_RUNTIME_DIR:-/tmp}/shift.sock",
		ControlSocket: "${XDG_RUNTIME_DIR:-/tmp}/shift-control.sock",
		LogLevel:      "info",
		Sessions: SessionsConfig{
			LoadingGrace:  30 * time.Second,
			TokenTTL:      5 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Admin: AdminConfig{
			DisplayName: "admin",
		},
		DRM: DRMConfig{
			SysfsRoot:    "/sys/class/drm",
			PollInterval: 2 * time.Second,
		},
		VirtualMonitors: []VirtualMonitor{
			{ID: "virtual-0", Name: "Virtual-1", Width: 1920, Height: 1080, RefreshRate: 60},
		},
	}
}

// Load loads configuration from the SHIFT_CONFIG environment variable.
func Load() (*Config, error) {
	configPath := os.Getenv("SHIFT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SHIFT_CONFIG environment variable not set; " +
			"set it to the path of your shift.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, on top of
// [Default].
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.parse(data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse loads configuration from YAML text on top of [Default].
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.parse(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	// A file that lists virtual monitors replaces the default set.
	c.VirtualMonitors = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	var probe struct {
		VirtualMonitors *[]VirtualMonitor `yaml:"virtual_monitors"`
	}
	if err := yaml.Unmarshal(data, &probe); err == nil && probe.VirtualMonitors == nil {
		c.VirtualMonitors = Default().VirtualMonitors
	}
	c.applyEnvironmentOverrides()
	c.expandVariables()
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production drives hardware unless told otherwise.
		if overrides == nil {
			overrides = &ConfigOverrides{DRM: &DRMConfig{Enabled: true}}
		}
	}
	if overrides == nil {
		return
	}

	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}
	if overrides.Sessions != nil {
		if overrides.Sessions.LoadingGrace != 0 {
			c.Sessions.LoadingGrace = overrides.Sessions.LoadingGrace
		}
		if overrides.Sessions.TokenTTL != 0 {
			c.Sessions.TokenTTL = overrides.Sessions.TokenTTL
		}
		if overrides.Sessions.SweepInterval != 0 {
			c.Sessions.SweepInterval = overrides.Sessions.SweepInterval
		}
	}
	if overrides.DRM != nil {
		// Enabled is a bool, so it always applies.
		c.DRM.Enabled = overrides.DRM.Enabled
		if overrides.DRM.SysfsRoot != "" {
			c.DRM.SysfsRoot = overrides.DRM.SysfsRoot
		}
		if overrides.DRM.PollInterval != 0 {
			c.DRM.PollInterval = overrides.DRM.PollInterval
		}
	}
}

func (c *Config) expandVariables() {
	c.SocketPath = expandVars(c.SocketPath)
	c.ControlSocket = expandVars(c.ControlSocket)
	c.Admin.Client = expandVars(c.Admin.Client)
	c.Admin.TokenFile = expandVars(c.Admin.TokenFile)
	c.Journal.Path = expandVars(c.Journal.Path)
	c.Layout.Profile = expandVars(c.Layout.Profile)
	c.DRM.SysfsRoot = expandVars(c.DRM.SysfsRoot)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.SocketPath == "" {
		errs = append(errs, errors.New("socket_path is required"))
	}
	if c.ControlSocket != "" && c.ControlSocket == c.SocketPath {
		errs = append(errs, errors.New("control_socket must differ from socket_path"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel))
	}
	if c.Sessions.LoadingGrace < 0 {
		errs = append(errs, errors.New("sessions.loading_grace must not be negative"))
	}
	if c.Sessions.TokenTTL <= 0 {
		errs = append(errs, errors.New("sessions.token_ttl must be positive"))
	}
	if c.Sessions.SweepInterval <= 0 {
		errs = append(errs, errors.New("sessions.sweep_interval must be positive"))
	}
	if c.DRM.Enabled {
		if c.DRM.SysfsRoot == "" {
			errs = append(errs, errors.New("drm.sysfs_root is required when drm is enabled"))
		}
		if c.DRM.PollInterval <= 0 {
			errs = append(errs, errors.New("drm.poll_interval must be positive"))
		}
	}

	seen := make(map[string]bool)
	for i, monitor := range c.VirtualMonitors {
		if monitor.ID == "" {
			errs = append(errs, fmt.Errorf("virtual_monitors[%d]: id is required", i))
		} else if seen[monitor.ID] {
			errs = append(errs, fmt.Errorf("virtual_monitors[%d]: duplicate id %q", i, monitor.ID))
		}
		seen[monitor.ID] = true
		if monitor.Width <= 0 || monitor.Height <= 0 {
			errs = append(errs, fmt.Errorf("virtual_monitors[%d]: %dx%d has no area", i, monitor.Width, monitor.Height))
		}
		if monitor.RefreshRate < 0 {
			errs = append(errs, fmt.Errorf("virtual_monitors[%d]: negative refresh rate", i))
		}
	}

	return errors.Join(errs...)
}
