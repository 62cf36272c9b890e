// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material outside the Go heap.
//
// Shift keeps one long-lived secret per server process: the key that
// turns session tokens into table digests. A token that leaks from a
// core dump or swap can be replayed until it is redeemed, so the key
// lives in an anonymous mapping that is mlocked, excluded from core
// dumps, and zeroed on Close.
package secret
