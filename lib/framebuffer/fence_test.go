// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package framebuffer

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shift-foundation/shift/lib/testutil"
)

func TestSyncFileFence_SignalledDescriptor(t *testing.T) {
	// A regular file polls readable immediately, like a signalled
	// sync_file.
	fence := NewSyncFileFence(testutil.Memfd(t, "fence", 0))
	if err := fence.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := fence.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := fence.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestSyncFileFence_ReleaseUnblocksWaiter(t *testing.T) {
	// The read end of an empty pipe never becomes readable.
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	fence := NewSyncFileFence(reader)

	result := make(chan error, 1)
	go func() { result <- fence.Wait(context.Background()) }()

	if err := fence.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	err = testutil.RequireReceive(t, result, 5*time.Second, "waiter after release")
	if !errors.Is(err, ErrFenceReleased) {
		t.Fatalf("Wait error = %v, want ErrFenceReleased", err)
	}
}

func TestSyncFileFence_ContextCancel(t *testing.T) {
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	fence := NewSyncFileFence(reader)
	defer fence.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fence.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait error = %v, want context.Canceled", err)
	}
}
