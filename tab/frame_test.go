// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package tab

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/shift-foundation/shift/lib/fault"
)

func TestSplitter_FramesAcrossFeeds(t *testing.T) {
	var split splitter
	split.feed([]byte("ping\n\x00\x00"), nil)
	if _, ok, err := split.next(); ok || err != nil {
		t.Fatalf("next() on partial frame = ok %v, err %v", ok, err)
	}
	split.feed([]byte("\x00\x00\nsession_ready\n{\"session_id\":\"s1\"}\n"), nil)

	first, ok, err := split.next()
	if err != nil || !ok {
		t.Fatalf("first frame: ok %v, err %v", ok, err)
	}
	if first.Header != HeaderPing || !first.Empty() {
		t.Errorf("first = %q %q, want empty ping", first.Header, first.Payload)
	}

	second, ok, err := split.next()
	if err != nil || !ok {
		t.Fatalf("second frame: ok %v, err %v", ok, err)
	}
	if second.Header != HeaderSessionReady || string(second.Payload) != `{"session_id":"s1"}` {
		t.Errorf("second = %q %q", second.Header, second.Payload)
	}

	if _, ok, _ := split.next(); ok {
		t.Error("next() produced a frame from an empty buffer")
	}
}

func TestSplitter_FilesAttachToTheirFrame(t *testing.T) {
	var split splitter
	fenceA := devNull(t)
	fenceB := devNull(t)

	// Two frames delivered in one read, each preceded by its own
	// descriptor batch.
	split.feed([]byte("swap_buffers\n{\"monitor_id\":\"m\",\"index\":0}\n"), []*os.File{fenceA})
	split.feed([]byte("swap_buffers\n{\"monitor_id\":\"m\",\"index\":1}\n"), []*os.File{fenceB})
	split.feed([]byte("ping\n\x00\x00\x00\x00\n"), nil)

	for i, want := range []*os.File{fenceA, fenceB} {
		frame, ok, err := split.next()
		if err != nil || !ok {
			t.Fatalf("frame %d: ok %v, err %v", i, ok, err)
		}
		if len(frame.Files) != 1 || frame.Files[0] != want {
			t.Errorf("frame %d files = %v, want [%v]", i, frame.Files, want)
		}
	}
	ping, _, _ := split.next()
	if len(ping.Files) != 0 {
		t.Errorf("ping carried %d files", len(ping.Files))
	}
}

func TestSplitter_OversizedHeader(t *testing.T) {
	var split splitter
	split.feed([]byte(strings.Repeat("x", MaxFrameSize+1)), nil)
	_, _, err := split.next()
	if !errors.Is(err, fault.ErrUnexpectedMessage) {
		t.Fatalf("next() error = %v, want unexpected_message", err)
	}
}

func TestFrame_EncodeRejectsNewlines(t *testing.T) {
	frame := Frame{Header: "bad\nheader"}
	if _, err := frame.encode(); err == nil {
		t.Error("encode accepted a header with a newline")
	}
	frame = Frame{Header: "error", Payload: []byte("a\nb")}
	if _, err := frame.encode(); err == nil {
		t.Error("encode accepted a payload with a newline")
	}
}

func TestFrame_EncodeEmptyPayload(t *testing.T) {
	frame := Frame{Header: HeaderPong}
	encoded, err := frame.encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded) != "pong\n\x00\x00\x00\x00\n" {
		t.Errorf("encode = %q", encoded)
	}
}

func devNull(t *testing.T) *os.File {
	t.Helper()
	file, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { file.Close() })
	return file
}
