// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/shift-foundation/shift/lib/dispatch"
	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/session"
	"github.com/shift-foundation/shift/lib/version"
	"github.com/shift-foundation/shift/tab"
)

// drainTimeout bounds how long a closing connection waits for its
// writer to flush to a peer that stopped reading.
const drainTimeout = 5 * time.Second

var errServerShutdown = fault.New(fault.KindDisconnected, "server shutting down")

type connection struct {
	server     *Server
	id         string
	conn       *tab.Conn
	queue      *dispatch.Queue
	logger     *slog.Logger
	writerDone chan struct{}

	// actor is set by the reader when authentication succeeds and is
	// only read by the reader afterwards.
	actor *actor
}

func (s *Server) newConnection(socket *net.UnixConn) *connection {
	id := fmt.Sprintf("conn-%d", s.connSeq.Add(1))
	c := &connection{
		server:     s,
		id:         id,
		conn:       tab.NewConn(socket),
		queue:      dispatch.NewQueue(),
		logger:     s.logger.With("connection_id", id),
		writerDone: make(chan struct{}),
	}
	s.mu.Lock()
	s.connections[c] = struct{}{}
	s.mu.Unlock()
	return c
}

// serve runs the connection to completion on the calling goroutine.
func (c *connection) serve() {
	c.logger.Debug("connection accepted")
	c.queue.Push(tab.Hello{Server: version.ServerName(), Protocol: tab.ProtocolVersion})
	go c.writeLoop()
	c.readLoop()
	c.shutdown()
}

func (c *connection) readLoop() {
	for {
		message, err := c.conn.ReceiveMessage()
		if err != nil {
			if fault.From(err).Class() == fault.ClassTransport {
				c.logger.Debug("connection ended", "error", err)
			} else {
				c.fail(err)
			}
			return
		}
		if c.queue.Closing() {
			closeFiles(message)
			continue
		}
		if err := c.handle(message); err != nil {
			c.fail(err)
		}
	}
}

// handle routes one message. Before authentication the reader handles
// messages itself; afterwards they are posted to the session's actor.
func (c *connection) handle(message tab.Message) error {
	client, ok := message.(tab.ClientMessage)
	if !ok {
		closeFiles(message)
		return fault.New(fault.KindUnexpectedMessage, "%s is not a client message", message.Header())
	}

	if c.actor == nil {
		switch typed := client.(type) {
		case tab.Auth:
			return c.authenticate(typed)
		case tab.Ping:
			c.queue.Push(tab.Pong{})
			return nil
		case tab.Pong:
			return nil
		default:
			closeFiles(client)
			return fault.New(fault.KindUnexpectedMessage, "%s before auth", client.Header())
		}
	}

	if _, ok := client.(tab.Auth); ok {
		return fault.New(fault.KindAlreadyAuthenticated, "connection already belongs to session %s", c.actor.sessionID)
	}
	if !c.actor.deliver(client) {
		closeFiles(client)
	}
	return nil
}

func (c *connection) authenticate(auth tab.Auth) error {
	s := c.server
	s.hotplug.Lock()
	defer s.hotplug.Unlock()

	transition, err := s.sessions.Authenticate(auth.Token, c.id)
	if err != nil {
		c.logger.Info("authentication failed", "kind", fault.KindOf(err))
		return err
	}
	info := transition.Session
	c.logger.Info("session authenticated", "session_id", info.ID, "role", info.Role)

	c.queue.Push(tab.AuthOK{
		Session:         sessionInfo(info),
		ProtocolVersion: tab.ProtocolVersion,
		Monitors:        monitorInfos(s.topology.Snapshot()),
	})

	a := newActor(s, c, info)
	c.actor = a
	s.mu.Lock()
	s.actors[info.ID] = a
	s.mu.Unlock()
	go a.run()

	s.sessionChanged(transition)
	if info.Role == session.RoleAdmin {
		s.promoteAdmin(info.ID)
	}
	return nil
}

// writeLoop is the only writer to the socket. It closes the socket
// once the queue is closed and flushed, or on the first write error.
func (c *connection) writeLoop() {
	defer close(c.writerDone)
	defer c.conn.Close()
	for range c.queue.Ready() {
		events, done := c.queue.Drain()
		for _, event := range events {
			if err := c.conn.SendMessage(event); err != nil {
				c.logger.Debug("write failed", "header", event.Header(), "error", err)
				c.queue.CloseAfterDrain()
				return
			}
		}
		if done {
			return
		}
	}
}

// fail reports err to the peer and closes the connection once the
// report is flushed. Auth failures are reported as auth_error. Only the
// first report reaches the peer.
func (c *connection) fail(err error) {
	classified := fault.From(err)
	if classified.Class() == fault.ClassAuth {
		c.closeAfter(tab.AuthError{Kind: string(classified.Kind), Error: classified.Error()}, classified)
		return
	}
	c.closeAfter(tab.Error{Kind: string(classified.Kind), Message: classified.Error()}, classified)
}

// closeWith closes the connection on behalf of the server rather than
// in response to the peer, reporting err as an error event.
func (c *connection) closeWith(err error) {
	classified := fault.From(err)
	c.closeAfter(tab.Error{Kind: string(classified.Kind), Message: classified.Error()}, classified)
}

func (c *connection) closeAfter(event dispatch.Event, cause *fault.Error) {
	if c.queue.Push(event) {
		c.logger.Info("closing connection", "kind", cause.Kind, "error", cause.Detail)
	}
	c.queue.CloseAfterDrain()
}

// shutdown runs on the reader goroutine after the read loop ends.
func (c *connection) shutdown() {
	c.queue.CloseAfterDrain()
	select {
	case <-c.writerDone:
	case <-time.After(drainTimeout):
		c.logger.Warn("peer stopped reading, dropping queued events")
		c.conn.Close()
		<-c.writerDone
	}
	c.conn.Close()

	if c.actor != nil {
		c.server.retire(c.actor)
	}
	s := c.server
	s.mu.Lock()
	delete(s.connections, c)
	s.mu.Unlock()
	c.logger.Debug("connection closed", "queue", c.queue.Stats())
}

// closeFiles releases descriptors a message carried.
func closeFiles(message tab.Message) {
	switch typed := message.(type) {
	case tab.FramebufferLink:
		for _, file := range typed.Files {
			if file != nil {
				file.Close()
			}
		}
	case tab.SwapBuffers:
		if typed.Fence != nil {
			typed.Fence.Close()
		}
	}
}
