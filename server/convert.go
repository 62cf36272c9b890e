// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"github.com/shift-foundation/shift/lib/session"
	"github.com/shift-foundation/shift/lib/topology"
	"github.com/shift-foundation/shift/tab"
)

func sessionInfo(info session.Info) tab.SessionInfo {
	return tab.SessionInfo{
		ID:          info.ID,
		Role:        string(info.Role),
		DisplayName: info.DisplayName,
		State:       string(info.State),
	}
}

func monitorInfo(monitor topology.Monitor) tab.MonitorInfo {
	return tab.MonitorInfo{
		ID:          monitor.ID,
		Name:        monitor.Name,
		Width:       monitor.Width,
		Height:      monitor.Height,
		RefreshRate: monitor.RefreshRate,
		X:           monitor.X,
		Y:           monitor.Y,
		Scale:       monitor.Scale,
	}
}

func monitorInfos(monitors []topology.Monitor) []tab.MonitorInfo {
	infos := make([]tab.MonitorInfo, len(monitors))
	for i, monitor := range monitors {
		infos[i] = monitorInfo(monitor)
	}
	return infos
}
