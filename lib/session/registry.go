// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shift-foundation/shift/lib/clock"
	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/token"
)

const (
	// DefaultLoadingGrace is how long a session may stay Loading.
	DefaultLoadingGrace = 30 * time.Second

	// DefaultConsumedRetention is how long consumed sessions stay
	// listed before Sweep forgets them.
	DefaultConsumedRetention = time.Hour
)

// Config configures a Registry.
type Config struct {
	Authenticator *token.Authenticator
	Clock         clock.Clock
	Logger        *slog.Logger

	// LoadingGrace bounds the Loading state. Zero uses
	// DefaultLoadingGrace; negative disables the timer.
	LoadingGrace time.Duration

	// TokenTTL bounds how long a pending session's token can be
	// redeemed. Zero or negative never expires.
	TokenTTL time.Duration

	// ConsumedRetention overrides DefaultConsumedRetention.
	ConsumedRetention time.Duration

	// OnLoadingExpired is called, outside any registry lock, when a
	// session is still Loading at the end of its grace period. The
	// callee tears the session down and calls Consume. When nil the
	// registry consumes the session itself.
	OnLoadingExpired func(Info)
}

type record struct {
	info  Info
	grace *clock.Timer
}

// Registry is the set of sessions. It is safe for concurrent use.
type Registry struct {
	authenticator *token.Authenticator
	clock         clock.Clock
	logger        *slog.Logger
	grace         time.Duration
	tokenTTL      time.Duration
	retention     time.Duration
	onExpired     func(Info)

	mu       sync.Mutex
	sessions map[string]*record
	focused  string
	fallback string
}

// NewRegistry returns an empty registry.
func NewRegistry(config Config) (*Registry, error) {
	if config.Authenticator == nil {
		return nil, errors.New("session registry requires an authenticator")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.LoadingGrace == 0 {
		config.LoadingGrace = DefaultLoadingGrace
	}
	if config.ConsumedRetention <= 0 {
		config.ConsumedRetention = DefaultConsumedRetention
	}
	return &Registry{
		authenticator: config.Authenticator,
		clock:         config.Clock,
		logger:        config.Logger,
		grace:         config.LoadingGrace,
		tokenTTL:      config.TokenTTL,
		retention:     config.ConsumedRetention,
		onExpired:     config.OnLoadingExpired,
		sessions:      make(map[string]*record),
	}, nil
}

// CreatePending creates a Pending session and mints its token.
func (r *Registry) CreatePending(role Role, displayName string) (Info, string, error) {
	id, err := newID()
	if err != nil {
		return Info{}, "", err
	}
	now := r.clock.Now()
	info := Info{
		ID:          id,
		Role:        role,
		DisplayName: displayName,
		State:       Pending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	r.sessions[id] = &record{info: info}
	r.mu.Unlock()

	secret, err := r.authenticator.Mint(token.Draft{
		SessionID:   id,
		Role:        string(role),
		DisplayName: displayName,
	}, r.tokenTTL)
	if err != nil {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return Info{}, "", fmt.Errorf("creating session: %w", err)
	}
	r.logger.Info("session created", "session_id", id, "role", role, "display_name", displayName)
	return info, secret, nil
}

// Authenticate redeems secret on behalf of connectionID and moves its
// session from Pending to Loading.
func (r *Registry) Authenticate(secret, connectionID string) (Transition, error) {
	draft, err := r.authenticator.Redeem(secret)
	if err != nil {
		return Transition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[draft.SessionID]
	if !ok {
		return Transition{}, fault.New(fault.KindInvalidToken, "session %s no longer exists", draft.SessionID)
	}
	if !CanTransition(entry.info.State, Loading) {
		return Transition{}, fault.New(fault.KindAlreadyAuthenticated, "session %s is %s", draft.SessionID, entry.info.State)
	}
	entry.info.ConnectionID = connectionID
	transition, err := r.advanceLocked(entry, Loading)
	if err != nil {
		return Transition{}, err
	}
	if r.grace > 0 {
		id := entry.info.ID
		entry.grace = r.clock.AfterFunc(r.grace, func() { r.loadingExpired(id) })
	}
	return transition, nil
}

// MarkReady moves a Loading session to Occupied.
func (r *Registry) MarkReady(id string) (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookupLocked(id)
	if err != nil {
		return Transition{}, err
	}
	transition, err := r.advanceLocked(entry, Occupied)
	if err != nil {
		return Transition{}, err
	}
	r.stopGraceLocked(entry)
	return transition, nil
}

// Consume retires a session. Its token is revoked and focus reverts to
// the fallback if this session held it.
func (r *Registry) Consume(id string) (Transition, FocusChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookupLocked(id)
	if err != nil {
		return Transition{}, FocusChange{}, err
	}
	transition, err := r.advanceLocked(entry, Consumed)
	if err != nil {
		return Transition{}, FocusChange{}, err
	}
	r.stopGraceLocked(entry)
	r.authenticator.Revoke(id)

	focus := FocusChange{Previous: r.focused, Current: r.focused}
	if r.focused == id {
		r.focused = ""
		if fallback, ok := r.sessions[r.fallback]; ok && r.fallback != id && fallback.info.State == Occupied {
			r.focused = r.fallback
		}
		focus.Current = r.focused
	}
	if r.fallback == id {
		r.fallback = ""
	}
	return transition, focus, nil
}

// advanceLocked moves entry to the state to. Every state change goes
// through here and is refused unless CanTransition allows it.
func (r *Registry) advanceLocked(entry *record, to State) (Transition, error) {
	from := entry.info.State
	if !CanTransition(from, to) {
		return Transition{}, fault.New(fault.KindBadTransition, "session %s cannot move from %s to %s", entry.info.ID, from, to)
	}
	entry.info.State = to
	entry.info.UpdatedAt = r.clock.Now()
	r.logger.Info("session state changed", "session_id", entry.info.ID, "from", from, "to", to)
	return Transition{Session: entry.info, From: from}, nil
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	if to == Consumed {
		return from != Consumed
	}
	return next[from] == to
}

func (r *Registry) stopGraceLocked(entry *record) {
	if entry.grace != nil {
		entry.grace.Stop()
		entry.grace = nil
	}
}

func (r *Registry) loadingExpired(id string) {
	r.mu.Lock()
	entry, ok := r.sessions[id]
	if !ok || entry.info.State != Loading {
		r.mu.Unlock()
		return
	}
	entry.grace = nil
	info := entry.info
	r.mu.Unlock()

	r.logger.Warn("session did not become ready in time", "session_id", id, "grace", r.grace)
	if r.onExpired != nil {
		r.onExpired(info)
		return
	}
	if _, _, err := r.Consume(id); err != nil {
		r.logger.Error("consuming expired session", "session_id", id, "error", err)
	}
}

// Focus gives input focus to an Occupied session.
func (r *Registry) Focus(id string) (FocusChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookupLocked(id)
	if err != nil {
		return FocusChange{}, err
	}
	if entry.info.State != Occupied {
		return FocusChange{}, fault.New(fault.KindBadTransition, "session %s is %s and cannot take focus", id, entry.info.State)
	}
	change := FocusChange{Previous: r.focused, Current: id}
	r.focused = id
	return change, nil
}

// Focused returns the focused session id, or "".
func (r *Registry) Focused() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.focused
}

// SetFallback names the session that receives focus when the focused
// session is consumed.
func (r *Registry) SetFallback(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = id
}

// Sweep retires pending sessions whose tokens expired unredeemed and
// forgets consumed sessions past the retention window. It returns the
// transitions it made.
func (r *Registry) Sweep(now time.Time) []Transition {
	var transitions []Transition
	for _, draft := range r.authenticator.Cleanup(now) {
		r.mu.Lock()
		entry, ok := r.sessions[draft.SessionID]
		if ok && entry.info.State == Pending {
			if transition, err := r.advanceLocked(entry, Consumed); err == nil {
				transitions = append(transitions, transition)
			}
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.sessions {
		if entry.info.State == Consumed && now.Sub(entry.info.UpdatedAt) >= r.retention {
			delete(r.sessions, id)
		}
	}
	return transitions
}

// Get returns one session.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return Info{}, false
	}
	return entry.info, true
}

// List returns every known session, oldest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	list := make([]Info, 0, len(r.sessions))
	for _, entry := range r.sessions {
		list = append(list, entry.info)
	}
	r.mu.Unlock()
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Close stops every pending grace timer.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.sessions {
		r.stopGraceLocked(entry)
	}
}

func (r *Registry) lookupLocked(id string) (*record, error) {
	entry, ok := r.sessions[id]
	if !ok {
		return nil, fault.New(fault.KindBadTransition, "unknown session %s", id)
	}
	return entry, nil
}
