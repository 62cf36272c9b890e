// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// shift-server owns the displays and multiplexes them between session
// compositors speaking the tab protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/shift-foundation/shift/lib/config"
	"github.com/shift-foundation/shift/lib/drm"
	"github.com/shift-foundation/shift/lib/journal"
	"github.com/shift-foundation/shift/lib/topology"
	"github.com/shift-foundation/shift/lib/version"
	"github.com/shift-foundation/shift/server"
	"github.com/shift-foundation/shift/tab"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to shift.yaml (default: $SHIFT_CONFIG, else built-in defaults)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("shift-server %s (%s)\n", version.Info(), tab.ProtocolVersion)
		return nil
	}

	if configPath == "" {
		configPath = os.Getenv("SHIFT_CONFIG")
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var profile topology.Profile
	if cfg.Layout.Profile != "" {
		profile, err = topology.LoadProfile(cfg.Layout.Profile)
		if err != nil {
			return fmt.Errorf("layout profile: %w", err)
		}
	}

	var events *journal.Journal
	if cfg.Journal.Path != "" {
		events, err = journal.Open(journal.Config{
			Path:   cfg.Journal.Path,
			Logger: logger.With("component", "journal"),
		})
		if err != nil {
			return err
		}
		defer events.Close()
	}

	var sources []server.MonitorSource
	if cfg.DRM.Enabled {
		sources = append(sources, &drm.Poller{
			Root:     cfg.DRM.SysfsRoot,
			Interval: cfg.DRM.PollInterval,
			Logger:   logger.With("component", "drm"),
		})
	}

	srv, err := server.New(server.Config{
		SocketPath:       cfg.SocketPath,
		ControlSocket:    cfg.ControlSocket,
		Logger:           logger,
		LoadingGrace:     cfg.Sessions.LoadingGrace,
		TokenTTL:         cfg.Sessions.TokenTTL,
		SweepInterval:    cfg.Sessions.SweepInterval,
		Journal:          events,
		Profile:          profile,
		Monitors:         virtualMonitors(cfg.VirtualMonitors),
		Sources:          sources,
		AdminDisplayName: cfg.Admin.DisplayName,
	})
	if err != nil {
		return err
	}

	logger.Info("starting",
		"version", version.Info(),
		"protocol", tab.ProtocolVersion,
		"environment", cfg.Environment,
		"admin_session", srv.AdminSessionID(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Run(groupCtx) })
	if configPath != "" {
		group.Go(func() error {
			return watchConfig(groupCtx, srv, configPath, cfg.Layout.Profile, logger)
		})
	}
	group.Go(func() error {
		select {
		case <-srv.Listening():
		case <-groupCtx.Done():
			return nil
		}
		if cfg.Admin.Client == "" {
			if err := announceAdmin(cfg.Admin, srv.AdminSessionID(), srv.AdminToken(), logger); err != nil {
				return err
			}
			<-groupCtx.Done()
			if cfg.Admin.TokenFile != "" {
				os.Remove(cfg.Admin.TokenFile)
			}
			return nil
		}
		return superviseAdmin(groupCtx, cfg.Admin, cfg.SocketPath, srv.AdminToken(), logger)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// announceAdmin tells the operator how to start the admin client by
// hand. The token goes only to admin.token_file, never to the log.
func announceAdmin(admin config.AdminConfig, sessionID, token string, logger *slog.Logger) error {
	if admin.TokenFile == "" {
		logger.Info("no admin client configured; set admin.token_file or run shiftctl session create --role admin",
			"admin_session", sessionID)
		return nil
	}
	if err := writeTokenFile(admin.TokenFile, token); err != nil {
		return fmt.Errorf("writing admin token: %w", err)
	}
	logger.Info("no admin client configured; admin token written for manual launch",
		"admin_session", sessionID, "token_file", admin.TokenFile, "env", "SHIFT_SESSION_TOKEN")
	return nil
}

// writeTokenFile replaces path with a file only the owner can read.
// The token is renamed into place so readers never see it partially
// written or with a previous file's permissions.
func writeTokenFile(path, token string) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return err
	}
	file, err := os.CreateTemp(directory, ".shift-token-*")
	if err != nil {
		return err
	}
	defer os.Remove(file.Name())
	if err := file.Chmod(0o600); err != nil {
		file.Close()
		return err
	}
	if _, err := file.WriteString(token + "\n"); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(file.Name(), path)
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parseLevel(level string) slog.Level {
	switch level {
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

func virtualMonitors(configured []config.VirtualMonitor) []topology.Monitor {
	monitors := make([]topology.Monitor, 0, len(configured))
	for _, virtual := range configured {
		name := virtual.Name
		if name == "" {
			name = virtual.ID
		}
		monitors = append(monitors, topology.Monitor{
			ID:          virtual.ID,
			Name:        name,
			Width:       virtual.Width,
			Height:      virtual.Height,
			RefreshRate: virtual.RefreshRate,
		})
	}
	return monitors
}
