// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package tab implements the wire protocol spoken between the Shift
// server and the compositor sessions it hosts.
//
// A connection is a Unix stream socket carrying frames:
//
//	header '\n' payload '\n'
//
// The header names the message. The payload is compact JSON, or the
// four bytes "\x00\x00\x00\x00" when a message carries no fields.
// Messages that hand over GPU resources (framebuffer_link, and
// swap_buffers with an acquire fence) carry file descriptors as
// SCM_RIGHTS ancillary data sent in the same sendmsg call as the
// frame's first byte. The reader attaches descriptors to the frame
// whose bytes they arrived with, so a frame and its descriptors are
// always delivered together.
//
// The message set is closed. [Decode] maps a [Frame] to one of the
// concrete message types and reports any unknown header as an
// unexpected-message protocol violation. [ClientMessage] and
// [ServerMessage] mark the direction each type travels; the server's
// per-connection event queue holds only ServerMessage values.
//
// Descriptor ownership: a decoded message owns the *os.File values it
// carries and the receiver must close or hand them off. [Conn.Send]
// never closes the files it transmits.
package tab
