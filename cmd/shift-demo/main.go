// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// shift-demo is a minimal session compositor. It redeems a session
// token, links a swapchain to every monitor, and paints a color cycle
// until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/shift-foundation/shift/client"
	"github.com/shift-foundation/shift/lib/version"
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
		socketPath  string
		token       string
		frames      int
		verbose     bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("shift-demo", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", client.DefaultSocketPath(), "server socket path")
	flagSet.StringVar(&token, "token", "", "session token (default: $"+client.TokenEnv+")")
	flagSet.IntVar(&frames, "frames", 0, "stop after this many frames per monitor (0 runs until interrupted)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log every event")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("shift-demo %s\n", version.Full(tab.ProtocolVersion))
		return nil
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.Connect(ctx, client.Config{
		SocketPath: socketPath,
		Token:      token,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer c.Close()

	session := c.Session()
	logger.Info("connected",
		"server", c.Server(),
		"session_id", session.ID,
		"role", session.Role,
		"monitors", len(c.Monitors()),
	)

	demo := &demo{client: c, logger: logger, limit: frames, painted: make(map[string]int)}
	for _, monitor := range c.Monitors() {
		demo.link(ctx, monitor)
	}
	if err := c.SessionReady(ctx); err != nil {
		return fmt.Errorf("session ready: %w", err)
	}

	err = demo.loop(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
