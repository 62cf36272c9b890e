// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"time"

	"github.com/shift-foundation/shift/lib/journal"
	"github.com/shift-foundation/shift/lib/service"
	"github.com/shift-foundation/shift/lib/session"
	"github.com/shift-foundation/shift/lib/topology"
	"github.com/shift-foundation/shift/lib/version"
	"github.com/shift-foundation/shift/tab"
)

// Status is the control socket's status response.
type Status struct {
	Version        string  `cbor:"version"`
	Protocol       string  `cbor:"protocol"`
	UptimeSeconds  float64 `cbor:"uptime_seconds"`
	Sessions       int     `cbor:"sessions"`
	Monitors       int     `cbor:"monitors"`
	Connections    int     `cbor:"connections"`
	Focused        string  `cbor:"focused,omitempty"`
	AdminSession   string  `cbor:"admin_session"`
	JournalDropped uint64  `cbor:"journal_dropped,omitempty"`
}

// SessionEntry describes one session for list-sessions.
type SessionEntry struct {
	ID           string    `cbor:"id"`
	Role         string    `cbor:"role"`
	DisplayName  string    `cbor:"display_name,omitempty"`
	State        string    `cbor:"state"`
	ConnectionID string    `cbor:"connection_id,omitempty"`
	Focused      bool      `cbor:"focused,omitempty"`
	Outputs      []string  `cbor:"outputs,omitempty"`
	CreatedAt    time.Time `cbor:"created_at"`
	UpdatedAt    time.Time `cbor:"updated_at"`
}

// MonitorEntry describes one monitor for list-monitors.
type MonitorEntry struct {
	ID          string  `cbor:"id"`
	Name        string  `cbor:"name"`
	Width       int     `cbor:"width"`
	Height      int     `cbor:"height"`
	RefreshRate int     `cbor:"refresh_rate"`
	X           int     `cbor:"x"`
	Y           int     `cbor:"y"`
	Scale       float64 `cbor:"scale"`
	Virtual     bool    `cbor:"virtual,omitempty"`
}

// CreatedSession is the create-session response.
type CreatedSession struct {
	Session SessionEntry `cbor:"session"`
	Token   string       `cbor:"token"`
}

type sessionRequest struct {
	SessionID   string `cbor:"session_id"`
	Role        string `cbor:"role"`
	DisplayName string `cbor:"display_name"`
}

type monitorRequest struct {
	MonitorID   string `cbor:"monitor_id"`
	Name        string `cbor:"name"`
	Width       int    `cbor:"width"`
	Height      int    `cbor:"height"`
	RefreshRate int    `cbor:"refresh_rate"`
}

type historyRequest struct {
	SessionID string `cbor:"session_id"`
	Kind      string `cbor:"kind"`
	Limit     int    `cbor:"limit"`
}

func (s *Server) controlServer() *service.SocketServer {
	control := service.NewSocketServer(s.config.ControlSocket, s.logger.With("component", "control"))
	s.registerControl(control)
	return control
}

func (s *Server) registerControl(control *service.SocketServer) {
	control.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return s.Status(), nil
	})

	control.Handle("list-sessions", func(ctx context.Context, raw []byte) (any, error) {
		focused := s.sessions.Focused()
		sessions := s.Sessions()
		entries := make([]SessionEntry, len(sessions))
		for i, info := range sessions {
			entries[i] = sessionEntry(info)
			entries[i].Focused = info.ID == focused
			entries[i].Outputs = s.Outputs(info.ID)
		}
		return entries, nil
	})

	control.Handle("list-monitors", func(ctx context.Context, raw []byte) (any, error) {
		s.hotplug.Lock()
		virtual := make(map[string]bool, len(s.virtual))
		for id := range s.virtual {
			virtual[id] = true
		}
		s.hotplug.Unlock()

		monitors := s.Monitors()
		entries := make([]MonitorEntry, len(monitors))
		for i, monitor := range monitors {
			entries[i] = MonitorEntry{
				ID:          monitor.ID,
				Name:        monitor.Name,
				Width:       monitor.Width,
				Height:      monitor.Height,
				RefreshRate: monitor.RefreshRate,
				X:           monitor.X,
				Y:           monitor.Y,
				Scale:       monitor.Scale,
				Virtual:     virtual[monitor.ID],
			}
		}
		return entries, nil
	})

	control.Handle("create-session", func(ctx context.Context, raw []byte) (any, error) {
		var request sessionRequest
		if err := service.DecodeRequest(raw, &request); err != nil {
			return nil, err
		}
		role, err := session.ParseRole(request.Role)
		if err != nil {
			return nil, err
		}
		info, secret, err := s.CreateSession(role, request.DisplayName)
		if err != nil {
			return nil, err
		}
		return CreatedSession{Session: sessionEntry(info), Token: secret}, nil
	})

	control.Handle("close-session", func(ctx context.Context, raw []byte) (any, error) {
		var request sessionRequest
		if err := service.DecodeRequest(raw, &request); err != nil {
			return nil, err
		}
		return nil, s.CloseSession(request.SessionID)
	})

	control.Handle("focus-session", func(ctx context.Context, raw []byte) (any, error) {
		var request sessionRequest
		if err := service.DecodeRequest(raw, &request); err != nil {
			return nil, err
		}
		return nil, s.FocusSession(request.SessionID)
	})

	control.Handle("add-monitor", func(ctx context.Context, raw []byte) (any, error) {
		var request monitorRequest
		if err := service.DecodeRequest(raw, &request); err != nil {
			return nil, err
		}
		monitor := topology.Monitor{
			ID:          request.MonitorID,
			Name:        request.Name,
			Width:       request.Width,
			Height:      request.Height,
			RefreshRate: request.RefreshRate,
		}
		if monitor.Name == "" {
			monitor.Name = monitor.ID
		}
		s.hotplug.Lock()
		defer s.hotplug.Unlock()
		if err := s.upsertLocked(monitor); err != nil {
			return nil, err
		}
		s.virtual[monitor.ID] = true
		return nil, nil
	})

	control.Handle("remove-monitor", func(ctx context.Context, raw []byte) (any, error) {
		var request monitorRequest
		if err := service.DecodeRequest(raw, &request); err != nil {
			return nil, err
		}
		return nil, s.RemoveMonitor(ctx, request.MonitorID)
	})

	control.Handle("history", func(ctx context.Context, raw []byte) (any, error) {
		if s.journal == nil {
			return nil, errors.New("journal is disabled")
		}
		var request historyRequest
		if err := service.DecodeRequest(raw, &request); err != nil {
			return nil, err
		}
		return s.journal.Recent(ctx, journal.Query{
			SessionID: request.SessionID,
			Kind:      journal.Kind(request.Kind),
			Limit:     request.Limit,
		})
	})
}

// Status reports a summary of the server.
func (s *Server) Status() Status {
	s.mu.Lock()
	connections := len(s.connections)
	s.mu.Unlock()
	status := Status{
		Version:       version.Info(),
		Protocol:      tab.ProtocolVersion,
		UptimeSeconds: s.clock.Now().Sub(s.startedAt).Seconds(),
		Sessions:      len(s.sessions.List()),
		Monitors:      s.topology.Len(),
		Connections:   connections,
		Focused:       s.sessions.Focused(),
		AdminSession:  s.admin.ID,
	}
	if s.journal != nil {
		status.JournalDropped = s.journal.Dropped()
	}
	return status
}

func sessionEntry(info session.Info) SessionEntry {
	return SessionEntry{
		ID:           info.ID,
		Role:         string(info.Role),
		DisplayName:  info.DisplayName,
		State:        string(info.State),
		ConnectionID: info.ConnectionID,
		CreatedAt:    info.CreatedAt,
		UpdatedAt:    info.UpdatedAt,
	}
}
