// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"sync"

	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/journal"
	"github.com/shift-foundation/shift/lib/session"
	"github.com/shift-foundation/shift/tab"
)

// CreateSession mints a pending session and returns its token.
func (s *Server) CreateSession(role session.Role, displayName string) (session.Info, string, error) {
	info, secret, err := s.sessions.CreatePending(role, displayName)
	if err != nil {
		return session.Info{}, "", err
	}
	s.sessionChanged(session.Transition{Session: info, From: session.Pending})
	return info, secret, nil
}

// CloseSession consumes a session. A connected session's connection is
// closed and the session is consumed once its outputs are released.
func (s *Server) CloseSession(id string) error {
	if a := s.actor(id); a != nil {
		a.conn.closeWith(fault.New(fault.KindDisconnected, "session closed by administrator"))
		return nil
	}
	transition, focus, err := s.sessions.Consume(id)
	if err != nil {
		return err
	}
	s.sessionChanged(transition)
	s.focusChanged(focus)
	return nil
}

// FocusSession gives focus to an Occupied session.
func (s *Server) FocusSession(id string) error {
	change, err := s.sessions.Focus(id)
	if err != nil {
		return err
	}
	s.focusChanged(change)
	return nil
}

// Sessions returns every known session.
func (s *Server) Sessions() []session.Info {
	return s.sessions.List()
}

// Outputs returns the monitors a connected session has linked, or nil.
func (s *Server) Outputs(sessionID string) []string {
	a := s.actor(sessionID)
	if a == nil {
		return nil
	}
	var outputs []string
	a.call(func() { outputs = a.outputs() })
	return outputs
}

// promoteAdmin makes a freshly authenticated admin session Occupied
// and gives it focus when nothing else holds it.
func (s *Server) promoteAdmin(id string) {
	transition, err := s.sessions.MarkReady(id)
	if err != nil {
		s.logger.Error("promoting admin session", "session_id", id, "error", err)
		return
	}
	s.sessionChanged(transition)
	s.focusIfIdle(id)
}

// focusIfIdle focuses id when no session holds focus.
func (s *Server) focusIfIdle(id string) {
	if s.sessions.Focused() != "" {
		return
	}
	if err := s.FocusSession(id); err != nil {
		s.logger.Debug("initial focus refused", "session_id", id, "error", err)
	}
}

// sessionChanged journals a transition and tells the session and every
// admin session about it.
func (s *Server) sessionChanged(transition session.Transition) {
	info := transition.Session
	s.record(journal.Record{
		Kind:      journal.KindSessionState,
		SessionID: info.ID,
		Detail: map[string]string{
			"from": string(transition.From),
			"to":   string(info.State),
			"role": string(info.Role),
		},
	})
	event := tab.SessionStateChanged{Session: sessionInfo(info)}
	s.broadcast(func(a *actor) bool {
		return a.sessionID == info.ID || a.role == session.RoleAdmin
	}, event)
}

// focusChanged journals and broadcasts a focus change.
func (s *Server) focusChanged(change session.FocusChange) {
	if !change.Changed() {
		return
	}
	s.logger.Info("focus changed", "previous", change.Previous, "current", change.Current)
	s.record(journal.Record{
		Kind:      journal.KindFocus,
		SessionID: change.Current,
		Detail:    map[string]string{"previous": change.Previous},
	})
	s.broadcast(nil, tab.SessionActive{SessionID: change.Current})
}

// broadcast queues event for every actor accepted by filter (all when
// nil). It never blocks, so actors may broadcast from their own
// goroutine.
func (s *Server) broadcast(filter func(*actor) bool, event tab.ServerMessage) {
	for _, a := range s.liveActors() {
		if filter != nil && !filter(a) {
			continue
		}
		a.push(event)
	}
}

// eachActor runs work on every live actor and waits for all of them.
func (s *Server) eachActor(work func(*actor)) {
	var wg sync.WaitGroup
	for _, a := range s.liveActors() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.call(func() { work(a) })
		}()
	}
	wg.Wait()
}

func (s *Server) liveActors() []*actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	actors := make([]*actor, 0, len(s.actors))
	for _, a := range s.actors {
		actors = append(actors, a)
	}
	return actors
}

func (s *Server) actor(sessionID string) *actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actors[sessionID]
}

// retire tears a session down after its connection ended: outputs
// first, then the session is consumed.
func (s *Server) retire(a *actor) {
	a.call(a.teardown)

	s.mu.Lock()
	if s.actors[a.sessionID] == a {
		delete(s.actors, a.sessionID)
	}
	s.mu.Unlock()

	transition, focus, err := s.sessions.Consume(a.sessionID)
	if err != nil {
		a.logger.Debug("session already consumed", "error", err)
		return
	}
	s.sessionChanged(transition)
	s.focusChanged(focus)
}

// loadingExpired runs when a session overstays the loading grace
// period.
func (s *Server) loadingExpired(info session.Info) {
	if a := s.actor(info.ID); a != nil {
		a.conn.closeWith(fault.New(fault.KindTokenExpired, "session %s did not become ready in time", info.ID))
		return
	}
	transition, focus, err := s.sessions.Consume(info.ID)
	if err != nil {
		return
	}
	s.sessionChanged(transition)
	s.focusChanged(focus)
}
