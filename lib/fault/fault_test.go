// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := New(KindNoBuffers, "monitor %s", "m1")
	if !errors.Is(err, ErrNoBuffers) {
		t.Error("errors.Is(New(no_buffers), ErrNoBuffers) = false, want true")
	}
	if errors.Is(err, ErrMonitorGone) {
		t.Error("errors.Is(New(no_buffers), ErrMonitorGone) = true, want false")
	}

	wrapped := fmt.Errorf("swap: %w", err)
	if !errors.Is(wrapped, ErrNoBuffers) {
		t.Error("wrapped error lost its kind")
	}
}

func TestKind_Class(t *testing.T) {
	tests := []struct {
		kind Kind
		want Class
	}{
		{KindInvalidToken, ClassAuth},
		{KindTokenAlreadyUsed, ClassAuth},
		{KindTokenExpired, ClassAuth},
		{KindAlreadyAuthenticated, ClassAuth},
		{KindUnexpectedMessage, ClassProtocol},
		{KindBadTransition, ClassProtocol},
		{KindMonitorGone, ClassResource},
		{KindBufferDimensionMismatch, ClassResource},
		{KindNoBuffers, ClassResource},
		{KindDisconnected, ClassTransport},
		{KindIOFailure, ClassTransport},
		{Kind("from_the_future"), ClassProtocol},
	}
	for _, test := range tests {
		if got := test.kind.Class(); got != test.want {
			t.Errorf("%s.Class() = %s, want %s", test.kind, got, test.want)
		}
	}
}

func TestFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"auth", ErrTokenExpired, true},
		{"protocol", New(KindBadTransition, "index 1 is free"), true},
		{"resource", ErrBufferDimensionMismatch, false},
		{"transport", ErrDisconnected, true},
		{"unclassified", io.ErrUnexpectedEOF, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Fatal(test.err); got != test.want {
				t.Errorf("Fatal(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}

func TestFrom(t *testing.T) {
	if From(nil) != nil {
		t.Error("From(nil) should be nil")
	}
	got := From(io.EOF)
	if got.Kind != KindIOFailure {
		t.Errorf("From(io.EOF).Kind = %s, want %s", got.Kind, KindIOFailure)
	}
	if KindOf(fmt.Errorf("link: %w", ErrMonitorGone)) != KindMonitorGone {
		t.Error("KindOf did not unwrap")
	}
}

func TestError_Message(t *testing.T) {
	if got := ErrNoBuffers.Error(); got != "resource error: no_buffers" {
		t.Errorf("Error() = %q", got)
	}
	if got := New(KindInvalidToken, "unknown token").Error(); got != "auth error: invalid: unknown token" {
		t.Errorf("Error() = %q", got)
	}
}
