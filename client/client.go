// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/session"
	"github.com/shift-foundation/shift/tab"
)

const (
	// TokenEnv carries the session token to a launched session.
	TokenEnv = "SHIFT_SESSION_TOKEN"

	// SocketEnv overrides the server socket path.
	SocketEnv = "SHIFT_SOCKET"
)

// DefaultSocketPath returns $SHIFT_SOCKET, or shift.sock in
// $XDG_RUNTIME_DIR (falling back to /tmp).
func DefaultSocketPath() string {
	if path := os.Getenv(SocketEnv); path != "" {
		return path
	}
	directory := os.Getenv("XDG_RUNTIME_DIR")
	if directory == "" {
		directory = "/tmp"
	}
	return filepath.Join(directory, "shift.sock")
}

// Config configures Connect.
type Config struct {
	// SocketPath defaults to DefaultSocketPath.
	SocketPath string

	// Token defaults to $SHIFT_SESSION_TOKEN.
	Token string

	// Exporter defaults to MemfdExporter.
	Exporter Exporter

	Logger *slog.Logger
}

// Client is an authenticated tab connection.
type Client struct {
	conn     *tab.Conn
	exporter Exporter
	logger   *slog.Logger
	server   string

	incoming chan tab.ServerMessage
	stop     chan struct{}
	readErr  error

	session    tab.SessionInfo
	monitors   map[string]tab.MonitorInfo
	swapchains map[string]*Swapchain
	pending    []tab.ServerMessage
}

// Connect dials the server and authenticates.
func Connect(ctx context.Context, config Config) (*Client, error) {
	if config.SocketPath == "" {
		config.SocketPath = DefaultSocketPath()
	}
	if config.Token == "" {
		config.Token = os.Getenv(TokenEnv)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("no session token: set %s", TokenEnv)
	}
	conn, err := tab.Dial(ctx, config.SocketPath)
	if err != nil {
		return nil, err
	}
	c, err := handshake(ctx, conn, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// handshake reads hello, authenticates, and starts the reader.
func handshake(ctx context.Context, conn *tab.Conn, config Config) (*Client, error) {
	if config.Exporter == nil {
		config.Exporter = MemfdExporter{}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		conn:       conn,
		exporter:   config.Exporter,
		logger:     config.Logger,
		incoming:   make(chan tab.ServerMessage, 64),
		stop:       make(chan struct{}),
		monitors:   make(map[string]tab.MonitorInfo),
		swapchains: make(map[string]*Swapchain),
	}
	go c.readLoop()

	message, err := c.receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for hello: %w", err)
	}
	hello, ok := message.(tab.Hello)
	if !ok {
		return nil, fault.New(fault.KindUnexpectedMessage, "expected hello, got %s", message.Header())
	}
	if hello.Protocol != tab.ProtocolVersion {
		return nil, fault.New(fault.KindUnexpectedMessage, "server %s speaks %s, want %s",
			hello.Server, hello.Protocol, tab.ProtocolVersion)
	}
	c.server = hello.Server

	if err := c.send(tab.Auth{Token: config.Token}); err != nil {
		return nil, err
	}
	message, err = c.receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for auth_ok: %w", err)
	}
	switch typed := message.(type) {
	case tab.AuthOK:
		c.session = typed.Session
		for _, monitor := range typed.Monitors {
			c.monitors[monitor.ID] = monitor
		}
	case tab.AuthError:
		return nil, &fault.Error{Kind: fault.Kind(typed.Kind), Detail: typed.Error}
	case tab.Error:
		return nil, &fault.Error{Kind: fault.Kind(typed.Kind), Detail: typed.Message}
	default:
		return nil, fault.New(fault.KindUnexpectedMessage, "expected auth_ok, got %s", message.Header())
	}
	c.logger.Info("connected to display server",
		"server", c.server, "session_id", c.session.ID, "monitors", len(c.monitors))
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.incoming)
	for {
		message, err := c.conn.ReceiveMessage()
		if err != nil {
			c.readErr = err
			return
		}
		event, ok := message.(tab.ServerMessage)
		if !ok {
			c.readErr = fault.New(fault.KindUnexpectedMessage, "server sent client message %s", message.Header())
			c.conn.Close()
			return
		}
		select {
		case c.incoming <- event:
		case <-c.stop:
			return
		}
	}
}

func (c *Client) send(message tab.ClientMessage) error {
	if err := c.conn.SendMessage(message); err != nil {
		return fmt.Errorf("sending %s: %w", message.Header(), err)
	}
	return nil
}

// receive returns the next message from the server and applies it to
// the client's view of the session.
func (c *Client) receive(ctx context.Context) (tab.ServerMessage, error) {
	select {
	case message, ok := <-c.incoming:
		if !ok {
			if c.readErr != nil {
				return nil, c.readErr
			}
			return nil, fault.ErrDisconnected
		}
		c.apply(message)
		return message, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// await reads until match reports the reply to an outstanding request.
// Other events are kept for Poll. An error event ends the wait.
func (c *Client) await(ctx context.Context, match func(tab.ServerMessage) bool) (tab.ServerMessage, error) {
	for {
		message, err := c.receive(ctx)
		if err != nil {
			return nil, err
		}
		if event, ok := message.(tab.Error); ok {
			return nil, &fault.Error{Kind: fault.Kind(event.Kind), Detail: event.Message}
		}
		if match(message) {
			return message, nil
		}
		c.pending = append(c.pending, message)
	}
}

// apply updates tracked state from an event.
func (c *Client) apply(message tab.ServerMessage) {
	switch typed := message.(type) {
	case tab.MonitorAdded:
		c.monitors[typed.Monitor.ID] = typed.Monitor
	case tab.MonitorUpdated:
		previous := c.monitors[typed.Monitor.ID]
		c.monitors[typed.Monitor.ID] = typed.Monitor
		if previous.Width != typed.Monitor.Width || previous.Height != typed.Monitor.Height {
			c.dropSwapchain(typed.Monitor.ID)
		}
	case tab.MonitorRemoved:
		delete(c.monitors, typed.MonitorID)
		c.dropSwapchain(typed.MonitorID)
	case tab.SessionStateChanged:
		if typed.Session.ID == c.session.ID {
			c.session = typed.Session
		}
	}
}

func (c *Client) dropSwapchain(monitorID string) {
	if swapchain, ok := c.swapchains[monitorID]; ok {
		delete(c.swapchains, monitorID)
		if err := swapchain.Close(); err != nil {
			c.logger.Warn("releasing swapchain", "monitor_id", monitorID, "error", err)
		}
	}
}

// Server returns the name the server announced in hello.
func (c *Client) Server() string { return c.server }

// Session returns the session as last reported by the server.
func (c *Client) Session() tab.SessionInfo { return c.session }

// Monitors returns the known monitors in id order.
func (c *Client) Monitors() []tab.MonitorInfo {
	monitors := make([]tab.MonitorInfo, 0, len(c.monitors))
	for _, monitor := range c.monitors {
		monitors = append(monitors, monitor)
	}
	sort.Slice(monitors, func(i, j int) bool { return monitors[i].ID < monitors[j].ID })
	return monitors
}

// Monitor returns one monitor.
func (c *Client) Monitor(id string) (tab.MonitorInfo, bool) {
	monitor, ok := c.monitors[id]
	return monitor, ok
}

// Swapchain returns the linked swapchain for a monitor, or nil.
func (c *Client) Swapchain(monitorID string) *Swapchain {
	return c.swapchains[monitorID]
}

// CreateSwapchain exports a double buffer for a monitor and links it.
// An existing swapchain for the monitor is replaced.
func (c *Client) CreateSwapchain(ctx context.Context, monitorID string) (*Swapchain, error) {
	monitor, ok := c.monitors[monitorID]
	if !ok {
		return nil, fault.New(fault.KindMonitorGone, "no monitor %s", monitorID)
	}
	swapchain := &Swapchain{MonitorID: monitorID}
	link := tab.FramebufferLink{MonitorID: monitorID}
	for index := range swapchain.Buffers {
		buffer, err := c.exporter.Export(monitor, index)
		if err != nil {
			swapchain.Close()
			return nil, fmt.Errorf("exporting buffer %d for %s: %w", index, monitorID, err)
		}
		swapchain.Buffers[index] = buffer
		link.Buffers = append(link.Buffers, buffer.Descriptor)
		link.Files = append(link.Files, buffer.File)
	}
	if err := c.send(link); err != nil {
		swapchain.Close()
		return nil, err
	}

	reply, err := c.await(ctx, func(message tab.ServerMessage) bool {
		switch typed := message.(type) {
		case tab.FramebufferLinkOK:
			return typed.MonitorID == monitorID
		case tab.FramebufferLinkError:
			return typed.MonitorID == monitorID
		}
		return false
	})
	if err != nil {
		swapchain.Close()
		return nil, err
	}
	if failed, ok := reply.(tab.FramebufferLinkError); ok {
		swapchain.Close()
		return nil, &fault.Error{Kind: fault.Kind(failed.Kind), Detail: failed.Error}
	}
	c.dropSwapchain(monitorID)
	c.swapchains[monitorID] = swapchain
	c.logger.Debug("swapchain linked", "monitor_id", monitorID)
	return swapchain, nil
}

// AcquireWritable returns the index of a buffer the client may draw
// into. While both buffers are in flight it waits for frame_done.
func (c *Client) AcquireWritable(ctx context.Context, monitorID string) (int, error) {
	for {
		if err := c.send(tab.BufferAcquire{MonitorID: monitorID}); err != nil {
			return 0, err
		}
		reply, err := c.await(ctx, func(message tab.ServerMessage) bool {
			switch typed := message.(type) {
			case tab.BufferAcquired:
				return typed.MonitorID == monitorID
			case tab.NoBuffers:
				return typed.MonitorID == monitorID
			}
			return false
		})
		if err != nil {
			return 0, err
		}
		if acquired, ok := reply.(tab.BufferAcquired); ok {
			return acquired.Index, nil
		}
		if err := c.awaitFrameDone(ctx, monitorID); err != nil {
			return 0, err
		}
	}
}

// awaitFrameDone waits for a buffer of monitorID to come back after a
// no_buffers reply. Earlier frame_done events do not count: the buffer
// they freed has been handed out again. The frame_done stays queued
// for Poll.
func (c *Client) awaitFrameDone(ctx context.Context, monitorID string) error {
	reply, err := c.await(ctx, func(message tab.ServerMessage) bool {
		switch typed := message.(type) {
		case tab.FrameDone:
			return typed.MonitorID == monitorID
		case tab.MonitorRemoved:
			return typed.MonitorID == monitorID
		}
		return false
	})
	if err != nil {
		return err
	}
	c.pending = append(c.pending, reply)
	if _, removed := reply.(tab.MonitorRemoved); removed {
		return fault.New(fault.KindMonitorGone, "monitor %s was removed", monitorID)
	}
	return nil
}

// SwapBuffers submits a drawn buffer for scan-out. fence, when not nil,
// is a sync_file the server waits on before scanning out; the caller
// keeps its copy.
func (c *Client) SwapBuffers(ctx context.Context, monitorID string, index int, fence *os.File) error {
	if err := c.send(tab.SwapBuffers{MonitorID: monitorID, Index: index, Fence: fence}); err != nil {
		return err
	}
	_, err := c.await(ctx, func(message tab.ServerMessage) bool {
		ack, ok := message.(tab.SwapBuffersAck)
		return ok && ack.MonitorID == monitorID && ack.Index == index
	})
	return err
}

// SessionReady reports that the session has finished loading.
func (c *Client) SessionReady(ctx context.Context) error {
	if err := c.send(tab.SessionReady{SessionID: c.session.ID}); err != nil {
		return err
	}
	_, err := c.await(ctx, func(message tab.ServerMessage) bool {
		changed, ok := message.(tab.SessionStateChanged)
		return ok && changed.Session.ID == c.session.ID && changed.Session.State == string(session.Occupied)
	})
	return err
}

// CreateSession asks the server for a new session. Admin only.
func (c *Client) CreateSession(ctx context.Context, role, displayName string) (tab.SessionCreated, error) {
	if err := c.send(tab.SessionCreate{Role: role, DisplayName: displayName}); err != nil {
		return tab.SessionCreated{}, err
	}
	reply, err := c.await(ctx, func(message tab.ServerMessage) bool {
		_, ok := message.(tab.SessionCreated)
		return ok
	})
	if err != nil {
		return tab.SessionCreated{}, err
	}
	return reply.(tab.SessionCreated), nil
}

// SwitchSession moves focus to another session. Admin only.
func (c *Client) SwitchSession(ctx context.Context, sessionID, animation string, duration time.Duration) error {
	request := tab.SessionSwitch{
		SessionID:  sessionID,
		Animation:  animation,
		DurationMS: int(duration / time.Millisecond),
	}
	if err := c.send(request); err != nil {
		return err
	}
	_, err := c.await(ctx, func(message tab.ServerMessage) bool {
		active, ok := message.(tab.SessionActive)
		return ok && active.SessionID == sessionID
	})
	return err
}

// Ping round-trips a ping.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.send(tab.Ping{}); err != nil {
		return err
	}
	_, err := c.await(ctx, func(message tab.ServerMessage) bool {
		_, ok := message.(tab.Pong)
		return ok
	})
	return err
}

// Poll returns the next event, waiting for one if none is queued. A
// fatal error event is returned as an error.
func (c *Client) Poll(ctx context.Context) (tab.ServerMessage, error) {
	if len(c.pending) > 0 {
		message := c.pending[0]
		c.pending = c.pending[1:]
		return message, nil
	}
	message, err := c.receive(ctx)
	if err != nil {
		return nil, err
	}
	if event, ok := message.(tab.Error); ok {
		kind := fault.Kind(event.Kind)
		if fault.Fatal(&fault.Error{Kind: kind}) {
			return nil, &fault.Error{Kind: kind, Detail: event.Message}
		}
	}
	return message, nil
}

// Events returns every event available without waiting.
func (c *Client) Events() []tab.ServerMessage {
	events := c.pending
	c.pending = nil
	for {
		select {
		case message, ok := <-c.incoming:
			if !ok {
				return events
			}
			c.apply(message)
			events = append(events, message)
		default:
			return events
		}
	}
}

// Close disconnects and releases every swapchain.
func (c *Client) Close() error {
	close(c.stop)
	err := c.conn.Close()
	for monitorID := range c.swapchains {
		c.dropSwapchain(monitorID)
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
