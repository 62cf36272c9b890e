// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package framebuffer arbitrates the double-buffered hand-off of GPU
// surfaces between a session and the server's scan-out.
//
// Each session owns one [Manager]. For every monitor the session has
// linked, the manager keeps an output of exactly two buffers, each in
// one of four states:
//
//	Free --acquire--> Writable --submit--> Submitted --begin--> ScanningOut
//	  ^                                        |                    |
//	  +-------------- scan-out complete -------+--------------------+
//
// Submitted buffers form a FIFO. Scan-out completions may arrive in any
// order, but a buffer returns to Free (and its frame_done is produced)
// only once every buffer submitted before it has also completed, so
// frame_done always follows submit order. A completion for an output
// that has since been torn down or relinked is ignored.
//
// Acquiring when neither buffer is Free fails with [fault.ErrNoBuffers]
// and changes nothing; the client waits for frame_done. Submitting a
// buffer that is not Writable is a [fault.ErrBadTransition].
//
// The manager is owned by a single goroutine (the session's actor) and
// does no locking of its own. It owns every descriptor file passed to
// Link, every fence passed to a successful Submit, and the scan-out
// handles its [Importer] returns; teardown releases all of them without
// producing frame_done.
package framebuffer
