// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package tab

import (
	"encoding/json"

	"github.com/shift-foundation/shift/lib/fault"
)

// Decode maps a frame to its message type. Unknown headers, malformed
// payloads, and descriptor counts that do not match the message are
// UnexpectedMessage violations; on failure every descriptor the frame
// carried is closed.
func Decode(frame Frame) (Message, error) {
	message, err := decode(&frame)
	if err != nil {
		frame.Close()
		return nil, err
	}
	return message, nil
}

func decode(frame *Frame) (Message, error) {
	switch frame.Header {
	case HeaderHello:
		return unmarshal[Hello](frame)
	case HeaderAuth:
		return unmarshal[Auth](frame)
	case HeaderAuthOK:
		return unmarshal[AuthOK](frame)
	case HeaderAuthError:
		return unmarshal[AuthError](frame)
	case HeaderMonitorAdded:
		return unmarshal[MonitorAdded](frame)
	case HeaderMonitorRemoved:
		return unmarshal[MonitorRemoved](frame)
	case HeaderMonitorUpdated:
		return unmarshal[MonitorUpdated](frame)
	case HeaderFramebufferLink:
		return decodeFramebufferLink(frame)
	case HeaderFramebufferLinkOK:
		return unmarshal[FramebufferLinkOK](frame)
	case HeaderFramebufferLinkError:
		return unmarshal[FramebufferLinkError](frame)
	case HeaderBufferAcquire:
		return unmarshal[BufferAcquire](frame)
	case HeaderBufferAcquired:
		return unmarshal[BufferAcquired](frame)
	case HeaderNoBuffers:
		return unmarshal[NoBuffers](frame)
	case HeaderSwapBuffers:
		return decodeSwapBuffers(frame)
	case HeaderSwapBuffersAck:
		return unmarshal[SwapBuffersAck](frame)
	case HeaderFrameDone:
		return unmarshal[FrameDone](frame)
	case HeaderSessionReady:
		return unmarshal[SessionReady](frame)
	case HeaderSessionStateChanged:
		return unmarshal[SessionStateChanged](frame)
	case HeaderSessionCreate:
		return unmarshal[SessionCreate](frame)
	case HeaderSessionCreated:
		return unmarshal[SessionCreated](frame)
	case HeaderSessionSwitch:
		return unmarshal[SessionSwitch](frame)
	case HeaderSessionActive:
		return unmarshal[SessionActive](frame)
	case HeaderError:
		return unmarshal[Error](frame)
	case HeaderPing:
		return unmarshal[Ping](frame)
	case HeaderPong:
		return unmarshal[Pong](frame)
	default:
		return nil, fault.New(fault.KindUnexpectedMessage, "unknown header %q", frame.Header)
	}
}

// unmarshal decodes a message that carries no descriptors.
func unmarshal[T Message](frame *Frame) (Message, error) {
	var message T
	if len(frame.Files) != 0 {
		return nil, fault.New(fault.KindUnexpectedMessage, "%s carried %d unexpected descriptors", frame.Header, len(frame.Files))
	}
	if err := unmarshalPayload(frame, &message); err != nil {
		return nil, err
	}
	return message, nil
}

func unmarshalPayload(frame *Frame, target any) error {
	if frame.Empty() {
		return nil
	}
	if err := json.Unmarshal(frame.Payload, target); err != nil {
		return fault.New(fault.KindUnexpectedMessage, "malformed %s payload: %v", frame.Header, err)
	}
	return nil
}

func decodeFramebufferLink(frame *Frame) (Message, error) {
	var link FramebufferLink
	if err := unmarshalPayload(frame, &link); err != nil {
		return nil, err
	}
	if len(link.Buffers) != len(frame.Files) {
		return nil, fault.New(fault.KindUnexpectedMessage,
			"framebuffer_link describes %d buffers but carried %d descriptors", len(link.Buffers), len(frame.Files))
	}
	link.Files = frame.Files
	return link, nil
}

func decodeSwapBuffers(frame *Frame) (Message, error) {
	var swap SwapBuffers
	if err := unmarshalPayload(frame, &swap); err != nil {
		return nil, err
	}
	switch len(frame.Files) {
	case 0:
	case 1:
		swap.Fence = frame.Files[0]
	default:
		return nil, fault.New(fault.KindUnexpectedMessage, "swap_buffers carried %d descriptors, want at most 1", len(frame.Files))
	}
	return swap, nil
}
