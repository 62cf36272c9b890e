// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"testing"
	"time"

	"github.com/shift-foundation/shift/lib/clock"
	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/token"
)

type fixture struct {
	registry *Registry
	clock    *clock.FakeClock
	expired  []Info
}

func newFixture(t *testing.T, configure func(*Config)) *fixture {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	authenticator, err := token.New(token.Config{Clock: fake})
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	t.Cleanup(func() { authenticator.Close() })

	f := &fixture{clock: fake}
	config := Config{
		Authenticator: authenticator,
		Clock:         fake,
		LoadingGrace:  10 * time.Second,
	}
	if configure != nil {
		configure(&config)
	}
	f.registry, err = NewRegistry(config)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(f.registry.Close)
	return f
}

func (f *fixture) occupied(t *testing.T, role Role) Info {
	t.Helper()
	info, secret, err := f.registry.CreatePending(role, "desk")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.registry.Authenticate(secret, "conn-"+info.ID); err != nil {
		t.Fatal(err)
	}
	transition, err := f.registry.MarkReady(info.ID)
	if err != nil {
		t.Fatal(err)
	}
	return transition.Session
}

func TestAuthenticate_TokenReuse(t *testing.T) {
	f := newFixture(t, nil)
	info, secret, err := f.registry.CreatePending(RoleSession, "desk")
	if err != nil {
		t.Fatal(err)
	}
	if info.State != Pending {
		t.Fatalf("new session state = %s, want pending", info.State)
	}

	transition, err := f.registry.Authenticate(secret, "conn-1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if transition.From != Pending || transition.Session.State != Loading || transition.Session.ConnectionID != "conn-1" {
		t.Errorf("transition = %+v", transition)
	}

	_, err = f.registry.Authenticate(secret, "conn-2")
	if !errors.Is(err, fault.ErrTokenAlreadyUsed) {
		t.Fatalf("second Authenticate error = %v, want already_used", err)
	}
	current, _ := f.registry.Get(info.ID)
	if current.State != Loading || current.ConnectionID != "conn-1" {
		t.Errorf("session after rejected reuse = %+v, want untouched Loading on conn-1", current)
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.registry.Authenticate("ses_bogus", "conn"); !errors.Is(err, fault.ErrInvalidToken) {
		t.Fatalf("error = %v, want invalid", err)
	}
}

func TestLifecycle_StrictOrder(t *testing.T) {
	f := newFixture(t, nil)
	info, secret, _ := f.registry.CreatePending(RoleSession, "")

	if _, err := f.registry.MarkReady(info.ID); !errors.Is(err, fault.ErrBadTransition) {
		t.Fatalf("MarkReady from pending error = %v, want bad_transition", err)
	}
	if current, _ := f.registry.Get(info.ID); current.State != Pending {
		t.Fatalf("state after rejected transition = %s", current.State)
	}

	f.registry.Authenticate(secret, "conn")
	if _, err := f.registry.MarkReady(info.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.registry.MarkReady(info.ID); !errors.Is(err, fault.ErrBadTransition) {
		t.Fatalf("second MarkReady error = %v, want bad_transition", err)
	}

	transition, _, err := f.registry.Consume(info.ID)
	if err != nil || transition.From != Occupied || transition.Session.State != Consumed {
		t.Fatalf("Consume = %+v, %v", transition, err)
	}
	if _, _, err := f.registry.Consume(info.ID); !errors.Is(err, fault.ErrBadTransition) {
		t.Fatalf("Consume of consumed error = %v, want bad_transition", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Pending, Loading, true},
		{Loading, Occupied, true},
		{Pending, Occupied, false},
		{Occupied, Loading, false},
		{Pending, Consumed, true},
		{Loading, Consumed, true},
		{Occupied, Consumed, true},
		{Consumed, Consumed, false},
		{Consumed, Loading, false},
	}
	for _, test := range tests {
		if got := CanTransition(test.from, test.to); got != test.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", test.from, test.to, got, test.want)
		}
	}
}

func TestRegistry_TransitionsFollowCanTransition(t *testing.T) {
	f := newFixture(t, func(config *Config) { config.LoadingGrace = -1 })
	inState := func(state State) Info {
		t.Helper()
		info, secret, err := f.registry.CreatePending(RoleSession, string(state))
		if err != nil {
			t.Fatal(err)
		}
		if state == Pending {
			return info
		}
		if _, err := f.registry.Authenticate(secret, "conn-"+info.ID); err != nil {
			t.Fatal(err)
		}
		if state == Loading {
			return info
		}
		if _, err := f.registry.MarkReady(info.ID); err != nil {
			t.Fatal(err)
		}
		if state == Consumed {
			if _, _, err := f.registry.Consume(info.ID); err != nil {
				t.Fatal(err)
			}
		}
		return info
	}

	for _, from := range []State{Pending, Loading, Occupied, Consumed} {
		info := inState(from)
		_, err := f.registry.MarkReady(info.ID)
		if allowed := CanTransition(from, Occupied); (err == nil) != allowed {
			t.Errorf("MarkReady from %s error = %v, CanTransition = %v", from, err, allowed)
		}
		if err != nil && !errors.Is(err, fault.ErrBadTransition) {
			t.Errorf("MarkReady from %s error = %v, want bad_transition", from, err)
		}

		info = inState(from)
		_, _, err = f.registry.Consume(info.ID)
		if allowed := CanTransition(from, Consumed); (err == nil) != allowed {
			t.Errorf("Consume from %s error = %v, CanTransition = %v", from, err, allowed)
		}
		if err != nil && !errors.Is(err, fault.ErrBadTransition) {
			t.Errorf("Consume from %s error = %v, want bad_transition", from, err)
		}
	}
}

func TestLoadingGrace_ExpiryCallsHook(t *testing.T) {
	var f *fixture
	f = newFixture(t, func(config *Config) {
		config.OnLoadingExpired = func(info Info) { f.expired = append(f.expired, info) }
	})
	info, secret, _ := f.registry.CreatePending(RoleSession, "")
	f.registry.Authenticate(secret, "conn")

	f.clock.Advance(9 * time.Second)
	if len(f.expired) != 0 {
		t.Fatal("hook fired before grace elapsed")
	}
	f.clock.Advance(time.Second)
	if len(f.expired) != 1 || f.expired[0].ID != info.ID {
		t.Fatalf("expired = %+v, want %s", f.expired, info.ID)
	}
}

func TestLoadingGrace_ConsumesWithoutHook(t *testing.T) {
	f := newFixture(t, nil)
	info, secret, _ := f.registry.CreatePending(RoleSession, "")
	f.registry.Authenticate(secret, "conn")

	f.clock.Advance(10 * time.Second)
	if current, _ := f.registry.Get(info.ID); current.State != Consumed {
		t.Fatalf("state after grace = %s, want consumed", current.State)
	}
}

func TestLoadingGrace_ReadyStopsTimer(t *testing.T) {
	f := newFixture(t, nil)
	info := f.occupied(t, RoleSession)
	f.clock.Advance(time.Minute)
	if current, _ := f.registry.Get(info.ID); current.State != Occupied {
		t.Fatalf("state = %s, want occupied", current.State)
	}
}

func TestFocus_RevertsToFallback(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.occupied(t, RoleAdmin)
	f.registry.SetFallback(admin.ID)
	f.registry.Focus(admin.ID)

	user := f.occupied(t, RoleSession)
	change, err := f.registry.Focus(user.ID)
	if err != nil || change.Previous != admin.ID || change.Current != user.ID {
		t.Fatalf("Focus = %+v, %v", change, err)
	}

	_, focus, err := f.registry.Consume(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !focus.Changed() || focus.Current != admin.ID {
		t.Errorf("focus after consume = %+v, want revert to %s", focus, admin.ID)
	}
	if f.registry.Focused() != admin.ID {
		t.Errorf("Focused = %q", f.registry.Focused())
	}
}

func TestFocus_RequiresOccupied(t *testing.T) {
	f := newFixture(t, nil)
	info, _, _ := f.registry.CreatePending(RoleSession, "")
	if _, err := f.registry.Focus(info.ID); !errors.Is(err, fault.ErrBadTransition) {
		t.Fatalf("Focus(pending) error = %v, want bad_transition", err)
	}
}

func TestSweep_ExpiresUnredeemedPending(t *testing.T) {
	f := newFixture(t, func(config *Config) {
		config.TokenTTL = time.Minute
		config.ConsumedRetention = time.Hour
	})
	stale, _, _ := f.registry.CreatePending(RoleSession, "")
	live := f.occupied(t, RoleSession)

	f.clock.Advance(2 * time.Minute)
	transitions := f.registry.Sweep(f.clock.Now())
	if len(transitions) != 1 || transitions[0].Session.ID != stale.ID || transitions[0].From != Pending {
		t.Fatalf("Sweep = %+v, want %s pending->consumed", transitions, stale.ID)
	}
	if current, _ := f.registry.Get(live.ID); current.State != Occupied {
		t.Errorf("live session swept: %s", current.State)
	}

	f.clock.Advance(2 * time.Hour)
	f.registry.Sweep(f.clock.Now())
	if _, ok := f.registry.Get(stale.ID); ok {
		t.Error("consumed session kept past retention")
	}
	if len(f.registry.List()) != 1 {
		t.Errorf("List = %+v, want only the live session", f.registry.List())
	}
}

func TestParseRole(t *testing.T) {
	if role, err := ParseRole(""); err != nil || role != RoleSession {
		t.Errorf(`ParseRole("") = %s, %v`, role, err)
	}
	if _, err := ParseRole("root"); err == nil {
		t.Error(`ParseRole("root") succeeded`)
	}
}
