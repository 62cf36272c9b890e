// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Monitor is one display output. X, Y and Scale are assigned by the
// layout; values supplied to Upsert are ignored.
type Monitor struct {
	ID          string
	Name        string
	Width       int
	Height      int
	RefreshRate int
	X           int
	Y           int
	Scale       float64
}

// Change describes the effect of a mutation.
type Change struct {
	Monitor Monitor
	// Added is true when the monitor was not previously known.
	Added bool
	// Moved lists other monitors whose placement changed, in id order.
	Moved []Monitor
}

// Topology is the monitor set. The zero value is not usable; call New.
type Topology struct {
	mu       sync.RWMutex
	profile  Profile
	attached map[string]Monitor
	placed   map[string]Monitor
}

// New returns an empty topology using profile for placement.
func New(profile Profile) *Topology {
	return &Topology{
		profile:  profile,
		attached: make(map[string]Monitor),
		placed:   make(map[string]Monitor),
	}
}

// Upsert adds a monitor or updates an existing one. changed is false
// when the update is a no-op.
func (t *Topology) Upsert(monitor Monitor) (change Change, changed bool, err error) {
	if err := validate(monitor); err != nil {
		return Change{}, false, err
	}
	monitor.X, monitor.Y, monitor.Scale = 0, 0, 0

	t.mu.Lock()
	defer t.mu.Unlock()

	before, existed := t.placed[monitor.ID]
	t.attached[monitor.ID] = monitor
	moved := t.relayoutLocked(monitor.ID)
	after := t.placed[monitor.ID]

	if existed && after == before && len(moved) == 0 {
		return Change{Monitor: after}, false, nil
	}
	return Change{Monitor: after, Added: !existed, Moved: moved}, true, nil
}

// Remove deletes a monitor. ok is false when the id is unknown.
func (t *Topology) Remove(id string) (change Change, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed, ok := t.placed[id]
	if !ok {
		return Change{}, false
	}
	delete(t.attached, id)
	moved := t.relayoutLocked("")
	return Change{Monitor: removed, Moved: moved}, true
}

// SetProfile replaces the placement profile and returns the monitors
// that moved.
func (t *Topology) SetProfile(profile Profile) []Monitor {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profile = profile
	return t.relayoutLocked("")
}

// Get returns one placed monitor.
func (t *Topology) Get(id string) (Monitor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	monitor, ok := t.placed[id]
	return monitor, ok
}

// Snapshot returns every placed monitor in id order.
func (t *Topology) Snapshot() []Monitor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot := make([]Monitor, 0, len(t.placed))
	for _, monitor := range t.placed {
		snapshot = append(snapshot, monitor)
	}
	sortByID(snapshot)
	return snapshot
}

// Len returns the number of monitors.
func (t *Topology) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.placed)
}

// relayoutLocked recomputes placement and returns the monitors whose
// placement changed, excluding except.
func (t *Topology) relayoutLocked(except string) []Monitor {
	attached := make([]Monitor, 0, len(t.attached))
	for _, monitor := range t.attached {
		attached = append(attached, monitor)
	}

	next := make(map[string]Monitor, len(attached))
	var moved []Monitor
	for _, monitor := range Arrange(attached, t.profile) {
		next[monitor.ID] = monitor
		previous, existed := t.placed[monitor.ID]
		if monitor.ID == except || !existed {
			continue
		}
		if previous.X != monitor.X || previous.Y != monitor.Y || previous.Scale != monitor.Scale {
			moved = append(moved, monitor)
		}
	}
	t.placed = next
	return moved
}

// Arrange places monitors under profile. The input order does not
// matter; the result is in id order.
func Arrange(monitors []Monitor, profile Profile) []Monitor {
	placed := slices.Clone(monitors)
	sortByID(placed)

	cursor := 0
	for i := range placed {
		pin, pinned := profile.Monitors[placed[i].ID]
		if !pinned || pin.X == nil || pin.Y == nil {
			continue
		}
		placed[i].X, placed[i].Y = *pin.X, *pin.Y
		cursor = max(cursor, placed[i].X+placed[i].Width)
	}
	for i := range placed {
		pin, pinned := profile.Monitors[placed[i].ID]
		if !pinned || pin.X == nil || pin.Y == nil {
			placed[i].X, placed[i].Y = cursor, 0
			cursor += placed[i].Width
		}
		placed[i].Scale = 1
		if pinned && pin.Scale > 0 {
			placed[i].Scale = pin.Scale
		}
	}
	return placed
}

func sortByID(monitors []Monitor) {
	sort.Slice(monitors, func(i, j int) bool {
		return strings.Compare(monitors[i].ID, monitors[j].ID) < 0
	})
}

func validate(monitor Monitor) error {
	if monitor.ID == "" {
		return fmt.Errorf("monitor has no id")
	}
	if monitor.Width <= 0 || monitor.Height <= 0 {
		return fmt.Errorf("monitor %s has invalid resolution %dx%d", monitor.ID, monitor.Width, monitor.Height)
	}
	if monitor.RefreshRate < 0 {
		return fmt.Errorf("monitor %s has negative refresh rate", monitor.ID)
	}
	return nil
}
