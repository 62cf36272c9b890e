// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package framebuffer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrFenceReleased is returned by Wait when the fence was released
// before it signalled.
var ErrFenceReleased = errors.New("framebuffer: fence released")

// pollSliceMillis bounds each poll so waiters notice cancellation and
// release promptly.
const pollSliceMillis = 16

// SyncFileFence waits on a sync_file descriptor, which becomes
// readable when the GPU work it tracks has finished.
type SyncFileFence struct {
	file *os.File

	mu       sync.Mutex
	released chan struct{}
	waiters  sync.WaitGroup
}

// NewSyncFileFence takes ownership of file.
func NewSyncFileFence(file *os.File) *SyncFileFence {
	return &SyncFileFence{file: file, released: make(chan struct{})}
}

// Wait polls the descriptor until it signals.
func (f *SyncFileFence) Wait(ctx context.Context) error {
	f.mu.Lock()
	select {
	case <-f.released:
		f.mu.Unlock()
		return ErrFenceReleased
	default:
	}
	f.waiters.Add(1)
	f.mu.Unlock()
	defer f.waiters.Done()

	conn, err := f.file.SyscallConn()
	if err != nil {
		return fmt.Errorf("fence descriptor: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.released:
			return ErrFenceReleased
		default:
		}

		var ready bool
		var pollErr error
		controlErr := conn.Control(func(fd uintptr) {
			fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
			n, err := unix.Poll(fds, pollSliceMillis)
			switch {
			case errors.Is(err, unix.EINTR):
			case err != nil:
				pollErr = err
			case n > 0 && fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0:
				pollErr = fmt.Errorf("fence poll revents %#x", fds[0].Revents)
			case n > 0:
				ready = true
			}
		})
		if controlErr != nil {
			return fmt.Errorf("fence descriptor: %w", controlErr)
		}
		if pollErr != nil {
			return fmt.Errorf("waiting on fence: %w", pollErr)
		}
		if ready {
			return nil
		}
	}
}

// Release wakes waiters, waits for them to leave, and closes the
// descriptor.
func (f *SyncFileFence) Release() error {
	f.mu.Lock()
	select {
	case <-f.released:
		f.mu.Unlock()
		return nil
	default:
	}
	close(f.released)
	f.mu.Unlock()

	f.waiters.Wait()
	return f.file.Close()
}
