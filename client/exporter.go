// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/shift-foundation/shift/tab"
)

// FourccXRGB8888 is DRM_FORMAT_XRGB8888, four bytes per pixel.
const FourccXRGB8888 uint32 = 0x34325258

// Buffer is one exported render target.
type Buffer struct {
	Descriptor tab.BufferDescriptor
	File       *os.File
	// Pixels maps the buffer when the exporter supports CPU access.
	Pixels []byte
}

// Close unmaps and closes the buffer.
func (b *Buffer) Close() error {
	var errs []error
	if b.Pixels != nil {
		errs = append(errs, unix.Munmap(b.Pixels))
		b.Pixels = nil
	}
	if b.File != nil {
		errs = append(errs, b.File.Close())
		b.File = nil
	}
	return errors.Join(errs...)
}

// Exporter allocates buffers the server can import.
type Exporter interface {
	Export(monitor tab.MonitorInfo, index int) (*Buffer, error)
}

// MemfdExporter exports shared-memory buffers, for headless sessions
// and tests.
type MemfdExporter struct {
	// Fourcc defaults to FourccXRGB8888.
	Fourcc uint32
}

// Export allocates a memfd sized for monitor and maps it.
func (e MemfdExporter) Export(monitor tab.MonitorInfo, index int) (*Buffer, error) {
	fourcc := e.Fourcc
	if fourcc == 0 {
		fourcc = FourccXRGB8888
	}
	stride := monitor.Width * 4
	size := stride * monitor.Height
	if size <= 0 {
		return nil, fmt.Errorf("monitor %s has no area", monitor.ID)
	}

	name := fmt.Sprintf("shift-%s-%d", monitor.ID, index)
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	file := os.NewFile(uintptr(fd), name)
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, fmt.Errorf("sizing %s: %w", name, err)
	}
	pixels, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mapping %s: %w", name, err)
	}
	return &Buffer{
		Descriptor: tab.BufferDescriptor{
			Index:  index,
			Width:  monitor.Width,
			Height: monitor.Height,
			Stride: stride,
			Fourcc: fourcc,
		},
		File:   file,
		Pixels: pixels,
	}, nil
}

// Swapchain is the client's half of a linked double buffer.
type Swapchain struct {
	MonitorID string
	Buffers   [2]*Buffer
}

// Close releases both buffers. The server keeps its own references
// until the output is torn down.
func (s *Swapchain) Close() error {
	var errs []error
	for _, buffer := range s.Buffers {
		if buffer != nil {
			errs = append(errs, buffer.Close())
		}
	}
	return errors.Join(errs...)
}
