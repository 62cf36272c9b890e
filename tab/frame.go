// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package tab

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/shift-foundation/shift/lib/fault"
)

// ProtocolVersion is announced in hello and auth_ok. Clients refuse
// servers announcing a different version.
const ProtocolVersion = "tab/v1"

// MaxFrameSize bounds header plus payload. Larger frames are protocol
// violations; no legitimate message approaches it.
const MaxFrameSize = 1 << 20

// MaxFilesPerFrame bounds the descriptors accepted with one frame.
const MaxFilesPerFrame = 4

// emptyPayload marks a message without fields.
var emptyPayload = []byte{0, 0, 0, 0}

// Frame is one header/payload unit and the descriptors that arrived
// with it.
type Frame struct {
	Header  string
	Payload []byte
	Files   []*os.File
}

// Close closes every descriptor attached to the frame.
func (f *Frame) Close() {
	for _, file := range f.Files {
		if file != nil {
			file.Close()
		}
	}
	f.Files = nil
}

// Empty reports whether the frame carries no payload.
func (f *Frame) Empty() bool {
	return len(f.Payload) == 0 || bytes.Equal(f.Payload, emptyPayload)
}

// encode renders the frame's bytes. Descriptors travel separately.
func (f *Frame) encode() ([]byte, error) {
	if f.Header == "" || bytes.IndexByte([]byte(f.Header), '\n') >= 0 {
		return nil, fmt.Errorf("invalid frame header %q", f.Header)
	}
	payload := f.Payload
	if len(payload) == 0 {
		payload = emptyPayload
	}
	if bytes.IndexByte(payload, '\n') >= 0 {
		return nil, fmt.Errorf("payload for %s contains a newline", f.Header)
	}
	size := len(f.Header) + len(payload) + 2
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%s frame is %d bytes, limit %d", f.Header, size, MaxFrameSize)
	}
	encoded := make([]byte, 0, size)
	encoded = append(encoded, f.Header...)
	encoded = append(encoded, '\n')
	encoded = append(encoded, payload...)
	encoded = append(encoded, '\n')
	return encoded, nil
}

// fileBatch is a set of descriptors received alongside the stream byte
// at offset.
type fileBatch struct {
	offset int64
	files  []*os.File
}

// splitter accumulates stream bytes and descriptors and yields
// complete frames. It holds no I/O; Conn feeds it.
type splitter struct {
	buffer  []byte
	base    int64 // stream offset of buffer[0]
	batches []fileBatch
}

// feed appends received bytes and the descriptors that came with them.
func (s *splitter) feed(data []byte, files []*os.File) {
	if len(files) > 0 {
		s.batches = append(s.batches, fileBatch{
			offset: s.base + int64(len(s.buffer)),
			files:  files,
		})
	}
	s.buffer = append(s.buffer, data...)
}

// next returns the next complete frame, or ok=false when more bytes
// are needed.
func (s *splitter) next() (frame Frame, ok bool, err error) {
	headerEnd := bytes.IndexByte(s.buffer, '\n')
	if headerEnd < 0 {
		if len(s.buffer) > MaxFrameSize {
			return Frame{}, false, fault.New(fault.KindUnexpectedMessage, "header exceeds %d bytes", MaxFrameSize)
		}
		return Frame{}, false, nil
	}
	payloadEnd := bytes.IndexByte(s.buffer[headerEnd+1:], '\n')
	if payloadEnd < 0 {
		if len(s.buffer) > MaxFrameSize {
			return Frame{}, false, fault.New(fault.KindUnexpectedMessage, "frame exceeds %d bytes", MaxFrameSize)
		}
		return Frame{}, false, nil
	}
	end := headerEnd + 1 + payloadEnd + 1

	header := string(s.buffer[:headerEnd])
	if header == "" {
		return Frame{}, false, fault.New(fault.KindUnexpectedMessage, "empty frame header")
	}
	frame = Frame{
		Header:  header,
		Payload: bytes.Clone(s.buffer[headerEnd+1 : end-1]),
	}

	frameEnd := s.base + int64(end)
	for len(s.batches) > 0 && s.batches[0].offset < frameEnd {
		frame.Files = append(frame.Files, s.batches[0].files...)
		s.batches = s.batches[1:]
	}

	s.buffer = s.buffer[end:]
	s.base = frameEnd
	if len(frame.Files) > MaxFilesPerFrame {
		frame.Close()
		return Frame{}, false, fault.New(fault.KindUnexpectedMessage, "%s carried too many descriptors", header)
	}
	return frame, true, nil
}

// close releases descriptors that never reached a complete frame.
func (s *splitter) close() {
	for _, batch := range s.batches {
		for _, file := range batch.files {
			file.Close()
		}
	}
	s.batches = nil
}

var errShortWrite = errors.New("short write")
