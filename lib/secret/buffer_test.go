// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"testing"
)

func TestNew_Zeroed(t *testing.T) {
	buffer, err := New(32)
	if err != nil {
		t.Fatalf("New(32): %v", err)
	}
	defer buffer.Close()

	if buffer.Len() != 32 {
		t.Errorf("Len = %d, want 32", buffer.Len())
	}
	if !bytes.Equal(buffer.Bytes(), make([]byte, 32)) {
		t.Error("new buffer is not zeroed")
	}
}

func TestNew_RejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New(0) succeeded")
	}
}

func TestRandom_Distinct(t *testing.T) {
	first, err := Random(32)
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	defer first.Close()
	second, err := Random(32)
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	defer second.Close()

	if bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("two random keys are identical")
	}
}

func TestClose_Idempotent(t *testing.T) {
	buffer, err := Random(16)
	if err != nil {
		t.Fatal(err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if buffer.Len() != 0 {
		t.Errorf("Len after Close = %d", buffer.Len())
	}

	defer func() {
		if recover() == nil {
			t.Error("Bytes after Close did not panic")
		}
	}()
	buffer.Bytes()
}
