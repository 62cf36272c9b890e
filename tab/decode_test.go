// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package tab

import (
	"errors"
	"os"
	"testing"

	"github.com/shift-foundation/shift/lib/fault"
)

func TestDecode_UnknownHeader(t *testing.T) {
	_, err := Decode(Frame{Header: "input_event", Payload: []byte(`{}`)})
	if !errors.Is(err, fault.ErrUnexpectedMessage) {
		t.Fatalf("Decode(unknown) error = %v, want unexpected_message", err)
	}
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode(Frame{Header: HeaderAuth, Payload: []byte(`{"token":`)})
	if !errors.Is(err, fault.ErrUnexpectedMessage) {
		t.Fatalf("Decode(malformed) error = %v, want unexpected_message", err)
	}
}

func TestDecode_Auth(t *testing.T) {
	message, err := Decode(Frame{Header: HeaderAuth, Payload: []byte(`{"token":"ses_abc"}`)})
	if err != nil {
		t.Fatal(err)
	}
	auth, ok := message.(Auth)
	if !ok {
		t.Fatalf("Decode returned %T, want Auth", message)
	}
	if auth.Token != "ses_abc" {
		t.Errorf("Token = %q", auth.Token)
	}
	if _, ok := message.(ClientMessage); !ok {
		t.Error("Auth is not a ClientMessage")
	}
}

func TestDecode_FramebufferLinkDescriptorCount(t *testing.T) {
	payload := []byte(`{"monitor_id":"m","buffers":[{"index":0},{"index":1}]}`)
	only := devNull(t)
	_, err := Decode(Frame{Header: HeaderFramebufferLink, Payload: payload, Files: []*os.File{only}})
	if !errors.Is(err, fault.ErrUnexpectedMessage) {
		t.Fatalf("Decode error = %v, want unexpected_message", err)
	}
	// Decode closes the descriptors of a rejected frame.
	if _, statErr := only.Stat(); statErr == nil {
		t.Error("descriptor of rejected frame left open")
	}

	first, second := devNull(t), devNull(t)
	message, err := Decode(Frame{Header: HeaderFramebufferLink, Payload: payload, Files: []*os.File{first, second}})
	if err != nil {
		t.Fatal(err)
	}
	link := message.(FramebufferLink)
	if link.MonitorID != "m" || len(link.Buffers) != 2 || link.Files[1] != second {
		t.Errorf("link = %+v", link)
	}
}

func TestDecode_SwapBuffersFence(t *testing.T) {
	payload := []byte(`{"monitor_id":"m","index":1}`)
	message, err := Decode(Frame{Header: HeaderSwapBuffers, Payload: payload})
	if err != nil {
		t.Fatal(err)
	}
	if swap := message.(SwapBuffers); swap.Fence != nil || swap.Index != 1 {
		t.Errorf("swap without fence = %+v", swap)
	}

	fence := devNull(t)
	message, err = Decode(Frame{Header: HeaderSwapBuffers, Payload: payload, Files: []*os.File{fence}})
	if err != nil {
		t.Fatal(err)
	}
	if swap := message.(SwapBuffers); swap.Fence != fence {
		t.Errorf("Fence = %v, want %v", swap.Fence, fence)
	}
}

func TestDecode_DescriptorOnPlainMessage(t *testing.T) {
	_, err := Decode(Frame{Header: HeaderSessionReady, Payload: []byte(`{}`), Files: []*os.File{devNull(t)}})
	if !errors.Is(err, fault.ErrUnexpectedMessage) {
		t.Fatalf("Decode error = %v, want unexpected_message", err)
	}
}

func TestEncode_Direction(t *testing.T) {
	var _ ServerMessage = FrameDone{}
	var _ ClientMessage = SwapBuffers{}

	frame, err := Encode(FrameDone{MonitorID: "m", Index: 1})
	if err != nil {
		t.Fatal(err)
	}
	if frame.Header != HeaderFrameDone || string(frame.Payload) != `{"monitor_id":"m","index":1}` {
		t.Errorf("Encode(FrameDone) = %q %q", frame.Header, frame.Payload)
	}
}
