// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shift-foundation/shift/client"
	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/tab"
)

type demo struct {
	client  *client.Client
	logger  *slog.Logger
	limit   int
	painted map[string]int
}

func (d *demo) link(ctx context.Context, monitor tab.MonitorInfo) {
	if _, err := d.client.CreateSwapchain(ctx, monitor.ID); err != nil {
		d.logger.Warn("linking swapchain", "monitor_id", monitor.ID, "error", err)
		return
	}
	d.logger.Info("swapchain linked",
		"monitor_id", monitor.ID,
		"width", monitor.Width, "height", monitor.Height,
		"refresh_rate", monitor.RefreshRate,
	)
}

// loop renders one frame per linked monitor per pass and applies
// events between passes.
func (d *demo) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rendered := 0
		for _, monitor := range d.client.Monitors() {
			if d.limit > 0 && d.painted[monitor.ID] >= d.limit {
				continue
			}
			if d.client.Swapchain(monitor.ID) == nil {
				continue
			}
			if err := d.frame(ctx, monitor); err != nil {
				// Hotplug removed the monitor between listing and acquiring.
				if errors.Is(err, fault.ErrMonitorGone) {
					continue
				}
				return err
			}
			rendered++
		}
		if err := d.handleEvents(ctx); err != nil {
			return err
		}
		if rendered == 0 {
			if d.limit > 0 && d.done() {
				return nil
			}
			// Nothing to draw on; block until the server says something.
			event, err := d.client.Poll(ctx)
			if err != nil {
				return err
			}
			d.handle(ctx, event)
		}
	}
}

func (d *demo) done() bool {
	for _, monitor := range d.client.Monitors() {
		if d.painted[monitor.ID] < d.limit {
			return false
		}
	}
	return true
}

func (d *demo) frame(ctx context.Context, monitor tab.MonitorInfo) error {
	index, err := d.client.AcquireWritable(ctx, monitor.ID)
	if err != nil {
		return err
	}
	swapchain := d.client.Swapchain(monitor.ID)
	if swapchain == nil {
		return fault.ErrMonitorGone
	}
	frame := d.painted[monitor.ID]
	paint(swapchain.Buffers[index].Pixels, cycleColor(frame, monitor.RefreshRate))
	if err := d.client.SwapBuffers(ctx, monitor.ID, index, nil); err != nil {
		return err
	}
	d.painted[monitor.ID] = frame + 1
	return nil
}

func (d *demo) handleEvents(ctx context.Context) error {
	for _, event := range d.client.Events() {
		if failure, ok := event.(tab.Error); ok {
			kind := fault.Kind(failure.Kind)
			if fault.Fatal(&fault.Error{Kind: kind}) {
				return &fault.Error{Kind: kind, Detail: failure.Message}
			}
		}
		d.handle(ctx, event)
	}
	return nil
}

func (d *demo) handle(ctx context.Context, event tab.ServerMessage) {
	d.logger.Debug("event", "type", event.Header())
	switch event := event.(type) {
	case tab.MonitorAdded:
		d.link(ctx, event.Monitor)
	case tab.MonitorUpdated:
		if d.client.Swapchain(event.Monitor.ID) == nil {
			d.link(ctx, event.Monitor)
		}
	case tab.MonitorRemoved:
		delete(d.painted, event.MonitorID)
		d.logger.Info("monitor removed", "monitor_id", event.MonitorID)
	case tab.SessionActive:
		d.logger.Info("focus changed", "session_id", event.SessionID)
	case tab.Error:
		d.logger.Warn("server error", "kind", event.Kind, "message", event.Message)
	}
}

// cycleColor returns an XRGB pixel walking the hue wheel once every
// refreshRate*4 frames.
func cycleColor(frame, refreshRate int) uint32 {
	if refreshRate <= 0 {
		refreshRate = 60
	}
	period := refreshRate * 4
	position := (frame % period) * 6 * 255 / period
	sector := position / 255
	rising := uint32(position % 255)
	falling := 255 - rising
	var r, g, b uint32
	switch sector {
	case 0:
		r, g, b = 255, rising, 0
	case 1:
		r, g, b = falling, 255, 0
	case 2:
		r, g, b = 0, 255, rising
	case 3:
		r, g, b = 0, falling, 255
	case 4:
		r, g, b = rising, 0, 255
	default:
		r, g, b = 255, 0, falling
	}
	return r<<16 | g<<8 | b
}

// paint fills an XRGB8888 buffer. Pixels are little-endian in memory.
func paint(pixels []byte, color uint32) {
	for offset := 0; offset+4 <= len(pixels); offset += 4 {
		pixels[offset] = byte(color)
		pixels[offset+1] = byte(color >> 8)
		pixels[offset+2] = byte(color >> 16)
		pixels[offset+3] = 0xff
	}
}
