// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package fault defines the error taxonomy shared by the Shift server,
// its protocol library, and clients.
//
// Every failure that crosses a component boundary is a *Error carrying
// a Class (which decides how the connection reacts) and a Kind (the
// stable wire code sent to the peer in auth_error, error, and
// framebuffer_link_error payloads). The sentinel values below are
// matched with errors.Is, which compares by Kind so that a wrapped
// error carrying extra detail still matches its sentinel:
//
//	if errors.Is(err, fault.ErrNoBuffers) {
//	    // backpressure: wait for frame_done
//	}
//
// Class policy:
//
//   - Auth and Protocol errors are fatal to the connection. The server
//     notifies the peer and then closes it, which triggers teardown.
//   - Transport errors mean the connection is already gone; teardown
//     runs without notification.
//   - Resource errors are reported to the peer and the connection
//     stays open.
//
// A failed operation never leaves partial state behind; callers can
// retry or report without compensating.
package fault
