// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shift-foundation/shift/client"
	"github.com/shift-foundation/shift/lib/config"
	"github.com/shift-foundation/shift/lib/topology"
	"github.com/shift-foundation/shift/server"
)

// watchConfig applies edits to the config file's virtual monitors and
// to the layout profile while the server runs. Other settings need a
// restart.
func watchConfig(ctx context.Context, srv *server.Server, configPath, profilePath string, logger *slog.Logger) error {
	paths := []string{configPath}
	watchedProfile := ""
	if profilePath != "" {
		absolute, err := filepath.Abs(profilePath)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", profilePath, err)
		}
		watchedProfile = absolute
		paths = append(paths, profilePath)
	}
	return config.Watch(ctx, paths, config.DefaultDebounce, logger.With("component", "config"), func(path string) {
		if path == watchedProfile {
			profile, err := topology.LoadProfile(profilePath)
			if err != nil {
				logger.Warn("layout profile reload rejected", "path", path, "error", err)
				return
			}
			srv.ApplyProfile(profile)
			logger.Info("layout profile reloaded", "path", path, "pinned", len(profile.Monitors))
			return
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			logger.Warn("config reload rejected", "path", path, "error", err)
			return
		}
		if err := srv.SetVirtualMonitors(virtualMonitors(cfg.VirtualMonitors)); err != nil {
			logger.Warn("applying virtual monitors", "error", err)
			return
		}
		logger.Info("virtual monitors reloaded", "count", len(cfg.VirtualMonitors))
	})
}

// superviseAdmin runs the admin client with the admin token in its
// environment. The token is single-use, so the client is not restarted
// after it exits.
func superviseAdmin(ctx context.Context, admin config.AdminConfig, socketPath, token string, logger *slog.Logger) error {
	command := exec.CommandContext(ctx, admin.Client, admin.Args...)
	command.Env = adminEnvironment(os.Environ(), socketPath, token)
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	command.WaitDelay = 5 * time.Second

	if err := command.Start(); err != nil {
		return fmt.Errorf("starting admin client %s: %w", admin.Client, err)
	}
	logger.Info("admin client started", "client", admin.Client, "pid", command.Process.Pid)

	err := command.Wait()
	if ctx.Err() != nil {
		return nil
	}
	logger.Warn("admin client exited", "client", admin.Client, "error", err)
	return nil
}

func adminEnvironment(base []string, socketPath, token string) []string {
	environment := make([]string, 0, len(base)+2)
	for _, entry := range base {
		if hasKey(entry, client.TokenEnv) || hasKey(entry, client.SocketEnv) {
			continue
		}
		environment = append(environment, entry)
	}
	return append(environment,
		client.TokenEnv+"="+token,
		client.SocketEnv+"="+socketPath,
	)
}

func hasKey(entry, key string) bool {
	return strings.HasPrefix(entry, key+"=")
}
