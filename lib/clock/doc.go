// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for everything in Shift that waits:
// Loading grace periods, token expiry, registry sweeps, and headless
// scan-out pacing.
//
// Production code holds a Clock field set to Real(). Tests use Fake(),
// whose time moves only when Advance is called. AfterFunc callbacks on
// a fake clock run synchronously inside Advance, so a test can advance
// past a grace period and immediately observe the forced teardown:
//
//	fake := clock.Fake(time.Unix(1_700_000_000, 0))
//	registry := session.NewRegistry(session.Config{Clock: fake, ...})
//	// ... authenticate, never send session_ready ...
//	fake.Advance(grace)
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
