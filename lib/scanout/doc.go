// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package scanout holds the server-side ends of the GPU hand-off that
// the core treats as collaborators: importing client descriptors and
// presenting buffers.
//
// [FileImporter] validates a descriptor against its file and keeps its
// own duplicate of the descriptor for as long as the buffer is linked.
// [Headless] presents without a display: it waits for the acquire
// fence, then paces completions at the monitor's refresh rate so that
// clients see realistic frame_done timing. A KMS presenter slots in
// behind the same [Presenter] interface.
package scanout
