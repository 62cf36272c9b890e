// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package scanout

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/framebuffer"
)

// FileImporter imports descriptors by duplicating their file
// descriptor.
type FileImporter struct{}

// Handle is an imported buffer.
type Handle struct {
	MonitorID string
	Index     int
	Size      int64

	once sync.Once
	fd   int
}

// FD returns the duplicated descriptor, valid until Release.
func (h *Handle) FD() int { return h.fd }

// Release closes the duplicated descriptor.
func (h *Handle) Release() error {
	var err error
	h.once.Do(func() { err = unix.Close(h.fd) })
	return err
}

// Import checks that the buffer is large enough for its layout and
// duplicates its descriptor.
func (FileImporter) Import(monitorID string, descriptor framebuffer.Descriptor) (framebuffer.ScanoutHandle, error) {
	if descriptor.File == nil {
		return nil, fault.New(fault.KindUnexpectedMessage, "buffer %d has no descriptor", descriptor.Index)
	}
	conn, err := descriptor.File.SyscallConn()
	if err != nil {
		return nil, fault.New(fault.KindIOFailure, "buffer %d: %v", descriptor.Index, err)
	}

	var stat unix.Stat_t
	var dup int
	var opErr error
	err = conn.Control(func(fd uintptr) {
		if opErr = unix.Fstat(int(fd), &stat); opErr != nil {
			return
		}
		dup, opErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		return nil, fault.New(fault.KindIOFailure, "buffer %d: %v", descriptor.Index, err)
	}

	required := int64(descriptor.Offset) + int64(descriptor.Stride)*int64(descriptor.Height)
	if stat.Size > 0 && stat.Size < required {
		unix.Close(dup)
		return nil, fault.New(fault.KindBufferDimensionMismatch,
			"buffer %d holds %d bytes, layout needs %d", descriptor.Index, stat.Size, required)
	}
	return &Handle{MonitorID: monitorID, Index: descriptor.Index, Size: stat.Size, fd: dup}, nil
}
