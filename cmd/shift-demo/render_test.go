// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "testing"

func TestCycleColor(t *testing.T) {
	tests := []struct {
		frame int
		want  uint32
	}{
		{0, 0xff0000},
		{40, 0xffff00},
		{80, 0x00ff00},
		{120, 0x00ffff},
		{160, 0x0000ff},
		{200, 0xff00ff},
		{240, 0xff0000},
	}
	for _, test := range tests {
		if got := cycleColor(test.frame, 60); got != test.want {
			t.Errorf("cycleColor(%d, 60) = %06x, want %06x", test.frame, got, test.want)
		}
	}
}

func TestCycleColor_DefaultsRefreshRate(t *testing.T) {
	if got, want := cycleColor(40, 0), cycleColor(40, 60); got != want {
		t.Errorf("cycleColor(40, 0) = %06x, want %06x", got, want)
	}
}

func TestPaint_LittleEndianXRGB(t *testing.T) {
	pixels := make([]byte, 10)
	paint(pixels, 0x123456)
	want := []byte{0x56, 0x34, 0x12, 0xff, 0x56, 0x34, 0x12, 0xff, 0, 0}
	for i := range want {
		if pixels[i] != want[i] {
			t.Fatalf("pixels = % x, want % x", pixels, want)
		}
	}
}
