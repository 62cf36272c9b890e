// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the library a compositor session uses to talk to
// the Shift server over the tab protocol.
//
// [Connect] dials the server, checks the protocol version announced in
// hello, and authenticates with a session token (by default the one the
// server placed in SHIFT_SESSION_TOKEN when it launched the session).
// The returned [Client] tracks the monitor set and the session's own
// state as events arrive.
//
// Rendering follows the double-buffer cycle:
//
//	swapchain, _ := c.CreateSwapchain(ctx, monitorID)
//	index, _ := c.AcquireWritable(ctx, monitorID)
//	draw(swapchain.Buffers[index].Pixels)
//	c.SwapBuffers(ctx, monitorID, index, nil)
//
// AcquireWritable blocks while both buffers are in flight and resumes
// once frame_done returns one. Events that arrive while a request waits
// for its reply are kept and handed out, in order, by [Client.Poll] and
// [Client.Events].
//
// A Client is not safe for concurrent use. One goroutine drives it,
// typically a render loop that alternates drawing with Poll.
package client
