// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package drm discovers physical monitors from the kernel's DRM sysfs
// tree and reports hotplug by polling it.
//
// Each connector appears as /sys/class/drm/cardN-<connector> with a
// status file ("connected" or "disconnected") and a modes file whose
// first line is the preferred mode ("2560x1440"). Sysfs does not expose
// refresh rates, so discovered monitors report DefaultRefreshRate until
// a KMS backend reads the mode timings.
package drm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shift-foundation/shift/lib/clock"
	"github.com/shift-foundation/shift/lib/topology"
)

const (
	// DefaultRoot is where the kernel exposes DRM devices.
	DefaultRoot = "/sys/class/drm"

	// DefaultRefreshRate is assumed for every discovered connector.
	DefaultRefreshRate = 60

	// IDPrefix marks monitor ids owned by this package.
	IDPrefix = "drm-"
)

// IsConnector reports whether a sysfs entry names a connector
// (card0-DP-1) rather than a card (card0) or render node (renderD128).
func IsConnector(name string) bool {
	card, connector, found := strings.Cut(name, "-")
	if !found || connector == "" || !strings.HasPrefix(card, "card") || len(card) == len("card") {
		return false
	}
	for _, character := range card[len("card"):] {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}

// ParseMode parses a "WIDTHxHEIGHT" mode line. Interlaced suffixes
// ("1920x1080i") are accepted and ignored.
func ParseMode(line string) (width, height int, err error) {
	line = strings.TrimSuffix(strings.TrimSpace(line), "i")
	if _, err := fmt.Sscanf(line, "%dx%d", &width, &height); err != nil {
		return 0, 0, fmt.Errorf("parsing mode %q: %w", line, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("mode %q has no area", line)
	}
	return width, height, nil
}

// Scan returns every connected connector under root with a usable
// preferred mode, in id order.
func Scan(root string) ([]topology.Monitor, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}
	var monitors []topology.Monitor
	for _, entry := range entries {
		name := entry.Name()
		if !IsConnector(name) {
			continue
		}
		directory := filepath.Join(root, name)
		if readLine(filepath.Join(directory, "status")) != "connected" {
			continue
		}
		width, height, err := ParseMode(readLine(filepath.Join(directory, "modes")))
		if err != nil {
			continue
		}
		_, connector, _ := strings.Cut(name, "-")
		monitors = append(monitors, topology.Monitor{
			ID:          IDPrefix + name,
			Name:        connector,
			Width:       width,
			Height:      height,
			RefreshRate: DefaultRefreshRate,
		})
	}
	sort.Slice(monitors, func(i, j int) bool { return monitors[i].ID < monitors[j].ID })
	return monitors, nil
}

// readLine returns the first line of a sysfs file, or "".
func readLine(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(first)
}

// Sink receives hotplug changes.
type Sink interface {
	UpsertMonitor(ctx context.Context, monitor topology.Monitor) error
	RemoveMonitor(ctx context.Context, id string) error
}

// Poller rescans sysfs periodically and forwards differences to a
// Sink.
type Poller struct {
	Root     string
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger

	known map[string]topology.Monitor
}

// Run polls until ctx ends. The first scan happens immediately.
func (p *Poller) Run(ctx context.Context, sink Sink) error {
	if p.Clock == nil {
		p.Clock = clock.Real()
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.DiscardHandler)
	}
	if p.Interval <= 0 {
		p.Interval = 2 * time.Second
	}
	if p.Root == "" {
		p.Root = DefaultRoot
	}

	ticker := p.Clock.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		if err := p.Poll(ctx, sink); err != nil {
			p.Logger.Warn("drm scan failed", "root", p.Root, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll performs one scan and forwards the differences from the last.
func (p *Poller) Poll(ctx context.Context, sink Sink) error {
	monitors, err := Scan(p.Root)
	if err != nil {
		return err
	}
	current := make(map[string]topology.Monitor, len(monitors))
	for _, monitor := range monitors {
		current[monitor.ID] = monitor
		if previous, ok := p.known[monitor.ID]; ok && previous == monitor {
			continue
		}
		if err := sink.UpsertMonitor(ctx, monitor); err != nil {
			p.Logger.Warn("adding drm monitor", "monitor_id", monitor.ID, "error", err)
			delete(current, monitor.ID)
		}
	}
	var gone []string
	for id := range p.known {
		if _, ok := current[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		if err := sink.RemoveMonitor(ctx, id); err != nil {
			p.Logger.Warn("removing drm monitor", "monitor_id", id, "error", err)
		}
	}
	p.known = current
	return nil
}
