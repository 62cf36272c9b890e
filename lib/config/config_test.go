// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shift-foundation/shift/lib/testutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Sessions.LoadingGrace != 30*time.Second {
		t.Errorf("LoadingGrace = %v, want 30s", cfg.Sessions.LoadingGrace)
	}
	if len(cfg.VirtualMonitors) != 1 {
		t.Errorf("VirtualMonitors = %d, want 1", len(cfg.VirtualMonitors))
	}
	if cfg.DRM.Enabled {
		t.Error("DRM enabled by default")
	}
}

func TestLoad_RequiresShiftConfig(t *testing.T) {
	t.Setenv("SHIFT_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when SHIFT_CONFIG not set")
	}
	if !strings.HasPrefix(err.Error(), "SHIFT_CONFIG environment variable not set") {
		t.Errorf("error = %q", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "shift.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestLoad_WithShiftConfig(t *testing.T) {
	configPath := writeConfig(t, `
socket_path: /test/shift.sock
sessions:
  loading_grace: 5s
`)
	t.Setenv("SHIFT_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.SocketPath != "/test/shift.sock" {
		t.Errorf("SocketPath = %s, want /test/shift.sock", cfg.SocketPath)
	}
	if cfg.Sessions.LoadingGrace != 5*time.Second {
		t.Errorf("LoadingGrace = %v, want 5s", cfg.Sessions.LoadingGrace)
	}
	if cfg.Sessions.TokenTTL != 5*time.Minute {
		t.Errorf("TokenTTL = %v, want default 5m", cfg.Sessions.TokenTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_VirtualMonitors(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
virtual_monitors:
  - id: left
    name: Left
    width: 2560
    height: 1440
    refresh_rate: 144
  - id: right
    width: 1920
    height: 1080
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.VirtualMonitors) != 2 {
		t.Fatalf("VirtualMonitors = %+v, want 2 entries", cfg.VirtualMonitors)
	}
	if cfg.VirtualMonitors[0].RefreshRate != 144 {
		t.Errorf("left refresh = %d, want 144", cfg.VirtualMonitors[0].RefreshRate)
	}

	empty, err := Parse([]byte("virtual_monitors: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.VirtualMonitors) != 0 {
		t.Errorf("explicit empty list kept %d monitors", len(empty.VirtualMonitors))
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
environment: production
log_level: debug
drm:
  enabled: false
production:
  log_level: warn
  sessions:
    loading_grace: 10s
  drm:
    enabled: true
    poll_interval: 500ms
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %s, want warn", cfg.LogLevel)
	}
	if cfg.Sessions.LoadingGrace != 10*time.Second {
		t.Errorf("LoadingGrace = %v, want 10s", cfg.Sessions.LoadingGrace)
	}
	if !cfg.DRM.Enabled || cfg.DRM.PollInterval != 500*time.Millisecond {
		t.Errorf("DRM = %+v", cfg.DRM)
	}
	if cfg.DRM.SysfsRoot != "/sys/class/drm" {
		t.Errorf("SysfsRoot = %s, want default", cfg.DRM.SysfsRoot)
	}
}

func TestProductionDefaultsEnableDRM(t *testing.T) {
	cfg, err := Parse([]byte("environment: production\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.DRM.Enabled {
		t.Error("production without overrides should enable drm")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1234")
	t.Setenv("SHIFT_TEST_UNSET", "")

	cfg, err := Parse([]byte(`
journal:
  path: ${SHIFT_TEST_UNSET:-/var/lib/shift}/journal.db
admin:
  token_file: ${XDG_RUNTIME_DIR}/shift-admin.token
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SocketPath != "/run/user/1234/shift.sock" {
		t.Errorf("SocketPath = %s", cfg.SocketPath)
	}
	if cfg.Journal.Path != "/var/lib/shift/journal.db" {
		t.Errorf("Journal.Path = %s", cfg.Journal.Path)
	}
	if cfg.Admin.TokenFile != "/run/user/1234/shift-admin.token" {
		t.Errorf("Admin.TokenFile = %s", cfg.Admin.TokenFile)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"socket", func(c *Config) { c.SocketPath = "" }, "socket_path is required"},
		{"same sockets", func(c *Config) { c.ControlSocket = c.SocketPath }, "must differ"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"grace", func(c *Config) { c.Sessions.LoadingGrace = -time.Second }, "loading_grace"},
		{"ttl", func(c *Config) { c.Sessions.TokenTTL = 0 }, "token_ttl"},
		{"drm poll", func(c *Config) { c.DRM.Enabled = true; c.DRM.PollInterval = 0 }, "poll_interval"},
		{"monitor id", func(c *Config) { c.VirtualMonitors[0].ID = "" }, "id is required"},
		{"duplicate monitor", func(c *Config) {
			c.VirtualMonitors = append(c.VirtualMonitors, c.VirtualMonitors[0])
		}, "duplicate id"},
		{"monitor area", func(c *Config) { c.VirtualMonitors[0].Width = 0 }, "no area"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestWatch_ReportsRewrites(t *testing.T) {
	directory := t.TempDir()
	watched := filepath.Join(directory, "shift.yaml")
	other := filepath.Join(directory, "other.yaml")
	if err := os.WriteFile(watched, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan string, 8)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- Watch(ctx, []string{watched}, 20*time.Millisecond, nil, func(path string) {
			changes <- path
		})
	}()

	// The watcher is registered asynchronously; keep writing until it
	// reports.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := os.WriteFile(other, []byte("ignored\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(watched, []byte("log_level: debug\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case path := <-changes:
			if path != watched {
				t.Fatalf("changed = %s, want %s", path, watched)
			}
			cancel()
			if err := testutil.RequireReceive(t, watchErr, 5*time.Second, "Watch did not return"); err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-ticker.C:
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
}
