// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"strconv"

	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/journal"
	"github.com/shift-foundation/shift/lib/topology"
	"github.com/shift-foundation/shift/tab"
)

// UpsertMonitor adds a monitor or updates an existing one. Sessions
// whose output no longer matches an updated resolution lose that
// output before they see monitor_updated.
func (s *Server) UpsertMonitor(ctx context.Context, monitor topology.Monitor) error {
	s.hotplug.Lock()
	defer s.hotplug.Unlock()
	return s.upsertLocked(monitor)
}

func (s *Server) upsertLocked(monitor topology.Monitor) error {
	change, changed, err := s.topology.Upsert(monitor)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	placed := change.Monitor
	if change.Added {
		s.logger.Info("monitor added", "monitor_id", placed.ID, "width", placed.Width, "height", placed.Height, "x", placed.X)
		s.recordMonitor(journal.KindMonitorAdded, placed)
		event := tab.MonitorAdded{Monitor: monitorInfo(placed)}
		s.eachActor(func(a *actor) { a.push(event) })
	} else {
		s.logger.Info("monitor updated", "monitor_id", placed.ID, "width", placed.Width, "height", placed.Height)
		s.recordMonitor(journal.KindMonitorUpdated, placed)
		event := tab.MonitorUpdated{Monitor: monitorInfo(placed)}
		s.eachActor(func(a *actor) {
			a.resized(placed)
			a.push(event)
		})
	}
	s.announceMoved(change.Moved)
	return nil
}

// RemoveMonitor removes a monitor. It returns after every session has
// released its output for the monitor and queued monitor_removed.
func (s *Server) RemoveMonitor(ctx context.Context, id string) error {
	s.hotplug.Lock()
	defer s.hotplug.Unlock()
	return s.removeLocked(id)
}

func (s *Server) removeLocked(id string) error {
	change, ok := s.topology.Remove(id)
	if !ok {
		return fault.New(fault.KindMonitorGone, "no monitor %s", id)
	}
	removed := change.Monitor
	event := tab.MonitorRemoved{MonitorID: removed.ID, Name: removed.Name}
	s.eachActor(func(a *actor) {
		a.dropOutput(removed.ID, "monitor_removed")
		a.push(event)
	})
	if forgetter, ok := s.presenter.(interface{ Forget(string) }); ok {
		forgetter.Forget(removed.ID)
	}
	delete(s.virtual, removed.ID)
	s.logger.Info("monitor removed", "monitor_id", removed.ID)
	s.recordMonitor(journal.KindMonitorRemoved, removed)
	s.announceMoved(change.Moved)
	return nil
}

// ApplyProfile replaces the layout profile.
func (s *Server) ApplyProfile(profile topology.Profile) {
	s.hotplug.Lock()
	defer s.hotplug.Unlock()
	s.announceMoved(s.topology.SetProfile(profile))
}

// SetVirtualMonitors reconciles the configured virtual monitors:
// virtual monitors not in the list are removed and the rest upserted.
// Monitors from hardware sources are left alone.
func (s *Server) SetVirtualMonitors(monitors []topology.Monitor) error {
	s.hotplug.Lock()
	defer s.hotplug.Unlock()

	wanted := make(map[string]bool, len(monitors))
	for _, monitor := range monitors {
		wanted[monitor.ID] = true
	}
	for id := range s.virtual {
		if !wanted[id] {
			if err := s.removeLocked(id); err != nil {
				s.logger.Warn("removing virtual monitor", "monitor_id", id, "error", err)
			}
		}
	}
	for _, monitor := range monitors {
		if err := s.upsertLocked(monitor); err != nil {
			return err
		}
		s.virtual[monitor.ID] = true
	}
	return nil
}

// Monitors returns the placed monitors in id order.
func (s *Server) Monitors() []topology.Monitor {
	return s.topology.Snapshot()
}

func (s *Server) announceMoved(moved []topology.Monitor) {
	for _, monitor := range moved {
		event := tab.MonitorUpdated{Monitor: monitorInfo(monitor)}
		s.eachActor(func(a *actor) { a.push(event) })
	}
}

func (s *Server) recordMonitor(kind journal.Kind, monitor topology.Monitor) {
	s.record(journal.Record{
		Kind:      kind,
		MonitorID: monitor.ID,
		Detail: map[string]string{
			"name":   monitor.Name,
			"width":  strconv.Itoa(monitor.Width),
			"height": strconv.Itoa(monitor.Height),
			"x":      strconv.Itoa(monitor.X),
			"y":      strconv.Itoa(monitor.Y),
		},
	})
}
