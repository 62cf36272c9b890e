// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package framebuffer

import (
	"context"
	"os"
)

// BuffersPerOutput is fixed: every output is double-buffered.
const BuffersPerOutput = 2

// State is a buffer's position in the hand-off cycle.
type State int

const (
	Free State = iota
	Writable
	Submitted
	ScanningOut
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Writable:
		return "writable"
	case Submitted:
		return "submitted"
	case ScanningOut:
		return "scanning_out"
	default:
		return "unknown"
	}
}

// Descriptor is an exported GPU buffer as it arrives from the client.
type Descriptor struct {
	Index  int
	File   *os.File
	Width  int
	Height int
	Stride int
	Offset int
	Fourcc uint32
}

// ScanoutHandle is the server-side import of a descriptor.
type ScanoutHandle interface {
	Release() error
}

// Importer turns client descriptors into something the presenter can
// scan out. Import must not retain descriptor.File beyond the call
// unless it duplicates it; the manager closes the file on teardown.
type Importer interface {
	Import(monitorID string, descriptor Descriptor) (ScanoutHandle, error)
}

// Fence gates scan-out on the client's rendering completing.
type Fence interface {
	// Wait blocks until the fence signals, ctx ends, or the fence is
	// released.
	Wait(ctx context.Context) error
	// Release unblocks any waiter and frees the fence. Idempotent.
	Release() error
}

// FrameDone reports that a buffer is Free again.
type FrameDone struct {
	MonitorID string
	Index     int
}

// Scanout is a buffer handed to the presenter. Serial identifies the
// output generation for ScanoutComplete.
type Scanout struct {
	MonitorID  string
	Serial     uint64
	Index      int
	Handle     ScanoutHandle
	Fence      Fence
	Descriptor Descriptor
}
