// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds test helpers shared by Shift packages.
//
// [SocketDir] returns a short directory under /tmp for Unix sockets,
// whose paths are limited to 108 bytes. [Socketpair] returns a
// connected pair of Unix stream connections for exercising the tab
// protocol (including file descriptor passing) without a listener.
// [RequireReceive] and [RequireClosed] are the only places tests
// wait on wall-clock time; everything else uses lib/clock's fake.
// [UniqueID] produces distinguishable identifiers.
//
// Helpers fail the test with t.Fatalf instead of returning errors.
package testutil
