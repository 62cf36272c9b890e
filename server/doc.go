// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the Shift display server: it accepts tab protocol
// connections, authenticates them into sessions, and moves client
// buffers from render to scan-out.
//
// # Goroutines
//
// Every connection has a reader goroutine and a writer goroutine. The
// writer drains the connection's [dispatch.Queue] in order; nothing
// else writes to the socket. A fatal error pushes an error event and
// closes the queue, so the writer flushes it, closes the socket, and
// the reader unwinds the connection.
//
// Every authenticated session has an actor goroutine that owns the
// session's [framebuffer.Manager]. The reader posts each message to
// the actor; presenter completions and hotplug are posted to the actor
// too, so output and buffer state is only ever touched from one
// goroutine. The actor's mailbox is unbounded and posting never
// blocks. The reader alone is held back: it stops reading the socket
// while its actor has a full backlog of client messages. Focus and
// lifecycle broadcasts go straight to each connection's queue.
//
// # Hotplug
//
// Monitor changes are serialized with session authentication. A
// removed monitor is taken out of the topology first, then every
// actor drops its output for it and queues monitor_removed; the
// removal returns only after every actor has done so.
//
// # Lifecycle
//
// A session is consumed after its actor has released every buffer:
// when its connection ends, when it overstays the loading grace
// period, or when an administrator closes it. Focus reverts to the
// admin session when the focused session is consumed.
package server
