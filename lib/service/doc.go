// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the display server's control socket: a
// CBOR request-response protocol on a Unix socket, one request per
// connection, dispatched by an "action" field.
//
// [SocketServer] routes requests to registered [ActionFunc] handlers
// and wraps their results in a [Response]. [Client] is the matching
// caller used by shiftctl. Failures carrying a display error kind
// report it in the response so callers can match on it.
package service
