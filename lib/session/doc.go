// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package session tracks every session the server knows about and
// enforces the lifecycle
//
//	Pending -> Loading -> Occupied -> Consumed
//
// in strict order. A session is created Pending together with its
// single-use token. Presenting the token on a connection moves it to
// Loading and starts a grace timer; the client's session_ready moves it
// to Occupied. Any live state may go straight to Consumed (disconnect,
// administrative close, grace expiry, unredeemed token expiry), and
// Consumed is terminal. Every other transition is rejected with
// [fault.ErrBadTransition] and leaves the session unchanged.
//
// The registry also holds input focus. Only Occupied sessions can be
// focused; when the focused session is consumed, focus reverts to the
// fallback session (the admin session) if it is still live.
//
// The registry does not own buffers or connections. When a Loading
// session's grace period runs out, the registry calls OnLoadingExpired
// and leaves the teardown (which must release buffers before the
// session is consumed) to the caller.
package session
