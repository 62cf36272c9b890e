// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package topology tracks the connected monitors and their placement
// in the shared desktop coordinate space.
//
// The server's hotplug path is the only writer; connection handlers
// read snapshots concurrently. Every mutation recomputes the layout
// and reports which other monitors moved, so the caller can emit
// monitor_updated for them after the add or remove itself.
//
// Placement is a policy, and the only contract is determinism: the
// same set of monitors under the same [Profile] always produces the
// same coordinates. The default packs monitors left to right in
// ascending id order along y=0. A profile (a JSONC file) pins explicit
// positions and scales for chosen ids; unpinned monitors are packed to
// the right of the right-most pinned edge.
package topology
