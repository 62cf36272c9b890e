// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Role decides what a session's connection may do.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleSession Role = "session"
)

// ParseRole accepts the wire names of roles.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleAdmin, RoleSession:
		return Role(value), nil
	case "":
		return RoleSession, nil
	default:
		return "", fmt.Errorf("unknown session role %q", value)
	}
}

// State is a lifecycle position.
type State string

const (
	Pending  State = "pending"
	Loading  State = "loading"
	Occupied State = "occupied"
	Consumed State = "consumed"
)

// Live reports whether the state can still hold resources.
func (s State) Live() bool {
	return s == Loading || s == Occupied
}

// next is the single forward transition allowed out of each state
// other than consumption.
var next = map[State]State{
	Pending: Loading,
	Loading: Occupied,
}

// Info is an immutable snapshot of a session.
type Info struct {
	ID           string
	Role         Role
	DisplayName  string
	State        State
	ConnectionID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transition records one accepted state change.
type Transition struct {
	Session Info
	From    State
}

// FocusChange records a change of the focused session. Current is ""
// when nothing holds focus.
type FocusChange struct {
	Previous string
	Current  string
}

// Changed reports whether focus moved.
func (f FocusChange) Changed() bool { return f.Previous != f.Current }

func newID() (string, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return "ses_" + hex.EncodeToString(raw[:]), nil
}
