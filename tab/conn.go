// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package tab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/shift-foundation/shift/lib/fault"
)

const (
	readChunk = 64 << 10
	// Room for MaxFilesPerFrame descriptors in one control message.
	oobSize = 256
)

// Conn is a tab connection over a Unix stream socket. Receive may be
// called from one goroutine while Send is called from another.
type Conn struct {
	socket *net.UnixConn

	readMu sync.Mutex
	split  splitter
	data   []byte
	oob    []byte

	writeMu sync.Mutex
}

// NewConn wraps an accepted or dialed socket.
func NewConn(socket *net.UnixConn) *Conn {
	return &Conn{
		socket: socket,
		data:   make([]byte, readChunk),
		oob:    make([]byte, oobSize),
	}
}

// Dial connects to a tab server socket.
func Dial(ctx context.Context, path string) (*Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	socket, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("connecting to %s: unexpected connection type %T", path, conn)
	}
	return NewConn(socket), nil
}

// Receive blocks until a complete frame arrives. A closed peer yields a
// Disconnected transport error; malformed framing yields an
// UnexpectedMessage protocol error.
func (c *Conn) Receive() (Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		frame, ok, err := c.split.next()
		if err != nil {
			return Frame{}, err
		}
		if ok {
			return frame, nil
		}

		n, oobn, flags, _, err := c.socket.ReadMsgUnix(c.data, c.oob)
		files, rightsErr := receivedFiles(c.oob[:oobn])
		if n > 0 || len(files) > 0 {
			c.split.feed(c.data[:n], files)
		}
		if rightsErr != nil {
			return Frame{}, fault.New(fault.KindIOFailure, "parsing ancillary data: %v", rightsErr)
		}
		if flags&unix.MSG_CTRUNC != 0 {
			return Frame{}, fault.New(fault.KindUnexpectedMessage, "descriptors truncated")
		}
		if err != nil {
			return Frame{}, transportError(err)
		}
		if n == 0 && oobn == 0 {
			return Frame{}, fault.ErrDisconnected
		}
	}
}

// Send writes one frame, passing its descriptors as SCM_RIGHTS. The
// frame's files remain owned by the caller.
func (c *Conn) Send(frame Frame) error {
	encoded, err := frame.encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if len(frame.Files) == 0 {
		if _, err := c.socket.Write(encoded); err != nil {
			return transportError(err)
		}
		return nil
	}

	fds := make([]int, len(frame.Files))
	for i, file := range frame.Files {
		fds[i] = int(file.Fd())
	}
	n, _, err := c.socket.WriteMsgUnix(encoded, unix.UnixRights(fds...), nil)
	if err != nil {
		return transportError(err)
	}
	if n < len(encoded) {
		if _, err := c.socket.Write(encoded[n:]); err != nil {
			return transportError(fmt.Errorf("%w after %d of %d bytes: %v", errShortWrite, n, len(encoded), err))
		}
	}
	return nil
}

// SendMessage encodes and sends a message.
func (c *Conn) SendMessage(message Message) error {
	frame, err := Encode(message)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// ReceiveMessage receives and decodes one message.
func (c *Conn) ReceiveMessage() (Message, error) {
	frame, err := c.Receive()
	if err != nil {
		return nil, err
	}
	return Decode(frame)
}

// Close closes the socket and any descriptors still waiting for their
// frame.
func (c *Conn) Close() error {
	err := c.socket.Close()
	c.readMu.Lock()
	c.split.close()
	c.readMu.Unlock()
	return err
}

// CloseWrite shuts down the sending half, letting the peer drain what
// was already written before it sees end of stream.
func (c *Conn) CloseWrite() error {
	return c.socket.CloseWrite()
}

func receivedFiles(oob []byte) ([]*os.File, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	var files []*os.File
	for i := range messages {
		fds, err := unix.ParseUnixRights(&messages[i])
		if err != nil {
			continue
		}
		for _, fd := range fds {
			files = append(files, os.NewFile(uintptr(fd), "tab-fd"))
		}
	}
	return files, nil
}

func transportError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
		return fault.New(fault.KindDisconnected, "%v", err)
	}
	return fault.New(fault.KindIOFailure, "%v", err)
}
