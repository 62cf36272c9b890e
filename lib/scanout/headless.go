// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package scanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shift-foundation/shift/lib/clock"
	"github.com/shift-foundation/shift/lib/framebuffer"
	"github.com/shift-foundation/shift/lib/topology"
)

// DefaultRefreshRate paces monitors that report no refresh rate.
const DefaultRefreshRate = 60

// Job is one buffer to put on screen. Done is called exactly once,
// with nil after the buffer has been displayed, or with the error that
// prevented it.
type Job struct {
	Scanout framebuffer.Scanout
	Monitor topology.Monitor
	Done    func(err error)
}

// Presenter puts buffers on screen. Present must not block; ctx ends
// when the output is torn down.
type Presenter interface {
	Present(ctx context.Context, job Job)
}

// Headless is a Presenter with no display attached.
type Headless struct {
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	lastFlip  map[string]time.Time
	presented map[string]uint64
}

// NewHeadless returns a headless presenter.
func NewHeadless(clk clock.Clock, logger *slog.Logger) *Headless {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Headless{
		clock:     clk,
		logger:    logger,
		lastFlip:  make(map[string]time.Time),
		presented: make(map[string]uint64),
	}
}

func (h *Headless) Present(ctx context.Context, job Job) {
	go h.present(ctx, job)
}

func (h *Headless) present(ctx context.Context, job Job) {
	if job.Scanout.Fence != nil {
		if err := job.Scanout.Fence.Wait(ctx); err != nil {
			job.Done(err)
			return
		}
	}

	monitorID := job.Monitor.ID
	refresh := job.Monitor.RefreshRate
	if refresh <= 0 {
		refresh = DefaultRefreshRate
	}
	interval := time.Second / time.Duration(refresh)

	now := h.clock.Now()
	h.mu.Lock()
	flip := h.lastFlip[monitorID].Add(interval)
	if flip.Before(now) {
		flip = now
	}
	h.lastFlip[monitorID] = flip
	h.mu.Unlock()

	if delay := flip.Sub(now); delay > 0 {
		select {
		case <-ctx.Done():
			job.Done(ctx.Err())
			return
		case <-h.clock.After(delay):
		}
	}

	h.mu.Lock()
	h.presented[monitorID]++
	h.mu.Unlock()
	job.Done(nil)
}

// Presented returns the number of frames shown per monitor.
func (h *Headless) Presented() map[string]uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts := make(map[string]uint64, len(h.presented))
	for id, count := range h.presented {
		counts[id] = count
	}
	return counts
}

// Forget drops pacing state for a removed monitor.
func (h *Headless) Forget(monitorID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastFlip, monitorID)
	delete(h.presented, monitorID)
}
