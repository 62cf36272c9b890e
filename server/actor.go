// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/framebuffer"
	"github.com/shift-foundation/shift/lib/journal"
	"github.com/shift-foundation/shift/lib/scanout"
	"github.com/shift-foundation/shift/lib/session"
	"github.com/shift-foundation/shift/lib/topology"
	"github.com/shift-foundation/shift/tab"
)

// mailboxSize is how many client messages a reader may have queued
// on its actor before it stops reading the socket.
const mailboxSize = 64

// presentation is the scan-out context of one output generation.
type presentation struct {
	serial uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// actor owns one session's outputs. Every field below credits is only
// touched from run.
type actor struct {
	server    *Server
	conn      *connection
	sessionID string
	role      session.Role
	logger    *slog.Logger
	done      chan struct{}

	// mu guards queue and closed. wake holds at most one pending
	// wakeup for run.
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}

	// credits bounds the client messages in queue. Only the reader
	// takes credits; run never waits on them.
	credits chan struct{}

	manager    *framebuffer.Manager
	presenting map[string]presentation
	stopped    bool
}

func newActor(s *Server, c *connection, info session.Info) *actor {
	logger := c.logger.With("session_id", info.ID)
	return &actor{
		server:     s,
		conn:       c,
		sessionID:  info.ID,
		role:       info.Role,
		logger:     logger,
		done:       make(chan struct{}),
		wake:       make(chan struct{}, 1),
		credits:    make(chan struct{}, mailboxSize),
		manager:    framebuffer.NewManager(s.importer, logger),
		presenting: make(map[string]presentation),
	}
}

func (a *actor) run() {
	defer close(a.done)
	for !a.stopped {
		a.next()()
	}
	// Work queued behind teardown still runs so requests carrying
	// descriptors release them. Nothing is accepted after this.
	a.mu.Lock()
	a.closed = true
	rest := a.queue
	a.queue = nil
	a.mu.Unlock()
	for _, work := range rest {
		work()
	}
}

// next blocks until work is queued and removes it.
func (a *actor) next() func() {
	for {
		a.mu.Lock()
		if len(a.queue) > 0 {
			work := a.queue[0]
			a.queue[0] = nil
			a.queue = a.queue[1:]
			a.mu.Unlock()
			return work
		}
		a.mu.Unlock()
		<-a.wake
	}
}

// post queues work for the actor without blocking. It returns false
// once the actor has stopped.
func (a *actor) post(work func()) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.queue = append(a.queue, work)
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return true
}

// deliver queues a client message for the actor. It blocks the reader
// while mailboxSize messages are still waiting, and returns false once
// the actor has stopped.
func (a *actor) deliver(message tab.ClientMessage) bool {
	select {
	case a.credits <- struct{}{}:
	case <-a.done:
		return false
	}
	if !a.post(func() {
		<-a.credits
		a.handle(message)
	}) {
		<-a.credits
		return false
	}
	return true
}

// call runs work on the actor and waits for it. It returns false if
// the actor stopped before running it.
func (a *actor) call(work func()) bool {
	finished := make(chan struct{})
	if !a.post(func() {
		defer close(finished)
		work()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-a.done:
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}

// push queues an event for the session's connection.
func (a *actor) push(event tab.ServerMessage) {
	a.conn.queue.Push(event)
}

// handle processes one client message.
func (a *actor) handle(message tab.ClientMessage) {
	if a.stopped || a.conn.queue.Closing() {
		closeFiles(message)
		return
	}
	err := a.dispatch(message)
	if err == nil {
		return
	}
	if fault.Fatal(err) {
		a.conn.fail(err)
		return
	}
	classified := fault.From(err)
	a.logger.Debug("request failed", "header", message.Header(), "kind", classified.Kind, "error", classified.Detail)
	a.push(tab.Error{Kind: string(classified.Kind), Message: classified.Error()})
}

func (a *actor) dispatch(message tab.ClientMessage) error {
	switch typed := message.(type) {
	case tab.FramebufferLink:
		return a.link(typed)
	case tab.BufferAcquire:
		return a.acquire(typed)
	case tab.SwapBuffers:
		return a.swap(typed)
	case tab.SessionReady:
		return a.ready(typed)
	case tab.SessionCreate:
		return a.createSession(typed)
	case tab.SessionSwitch:
		return a.switchSession(typed)
	case tab.Ping:
		a.push(tab.Pong{})
		return nil
	case tab.Pong:
		return nil
	case tab.Auth:
		return fault.New(fault.KindAlreadyAuthenticated, "connection already belongs to session %s", a.sessionID)
	default:
		closeFiles(message)
		return fault.New(fault.KindUnexpectedMessage, "unhandled message %s", message.Header())
	}
}

func (a *actor) link(request tab.FramebufferLink) error {
	monitor, ok := a.server.topology.Get(request.MonitorID)
	if !ok {
		closeFiles(request)
		a.push(tab.FramebufferLinkError{
			MonitorID: request.MonitorID,
			Kind:      string(fault.KindMonitorGone),
			Error:     fault.New(fault.KindMonitorGone, "no monitor %s", request.MonitorID).Error(),
		})
		return nil
	}

	descriptors := make([]framebuffer.Descriptor, len(request.Buffers))
	for i, buffer := range request.Buffers {
		descriptors[i] = framebuffer.Descriptor{
			Index:  buffer.Index,
			File:   request.Files[i],
			Width:  buffer.Width,
			Height: buffer.Height,
			Stride: buffer.Stride,
			Offset: buffer.Offset,
			Fourcc: buffer.Fourcc,
		}
	}
	serial, err := a.manager.Link(monitor, descriptors)
	if err != nil {
		// A buffer the server could not import refuses the link but
		// leaves the connection usable.
		if fault.Fatal(err) && fault.KindOf(err) != fault.KindIOFailure {
			return err
		}
		classified := fault.From(err)
		a.push(tab.FramebufferLinkError{
			MonitorID: monitor.ID,
			Kind:      string(classified.Kind),
			Error:     classified.Error(),
		})
		return nil
	}

	a.stopPresenting(monitor.ID)
	ctx, cancel := context.WithCancel(context.Background())
	a.presenting[monitor.ID] = presentation{serial: serial, ctx: ctx, cancel: cancel}
	a.server.record(journal.Record{
		Kind:      journal.KindOutputLinked,
		SessionID: a.sessionID,
		MonitorID: monitor.ID,
		Detail:    map[string]string{"serial": strconv.FormatUint(serial, 10)},
	})
	a.logger.Info("output linked", "monitor_id", monitor.ID, "serial", serial)
	a.push(tab.FramebufferLinkOK{MonitorID: monitor.ID})
	return nil
}

func (a *actor) acquire(request tab.BufferAcquire) error {
	index, err := a.manager.AcquireWritable(request.MonitorID)
	if errors.Is(err, fault.ErrNoBuffers) {
		a.push(tab.NoBuffers{MonitorID: request.MonitorID})
		return nil
	}
	if err != nil {
		return err
	}
	a.push(tab.BufferAcquired{MonitorID: request.MonitorID, Index: index})
	return nil
}

func (a *actor) swap(request tab.SwapBuffers) error {
	var fence framebuffer.Fence
	if request.Fence != nil {
		fence = framebuffer.NewSyncFileFence(request.Fence)
	}
	if err := a.manager.Submit(request.MonitorID, request.Index, fence); err != nil {
		if fence != nil {
			fence.Release()
		}
		return err
	}
	a.push(tab.SwapBuffersAck{MonitorID: request.MonitorID, Index: request.Index})
	a.pump(request.MonitorID)
	return nil
}

// pump hands the next submitted buffer to the presenter if the output
// is idle.
func (a *actor) pump(monitorID string) {
	current, ok := a.presenting[monitorID]
	if !ok {
		return
	}
	monitor, ok := a.server.topology.Get(monitorID)
	if !ok {
		return
	}
	// The topology may hold a new mode that hotplug has not delivered
	// to this actor yet. Buffers never scan out at another size.
	a.resized(monitor)
	if _, ok := a.presenting[monitorID]; !ok {
		return
	}
	next, ok := a.manager.BeginScanout(monitorID)
	if !ok {
		return
	}
	a.server.presenter.Present(current.ctx, scanout.Job{
		Scanout: next,
		Monitor: monitor,
		Done: func(err error) {
			a.post(func() { a.scanoutDone(next, err) })
		},
	})
}

func (a *actor) scanoutDone(completed framebuffer.Scanout, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("scan-out failed, returning buffer",
			"monitor_id", completed.MonitorID, "index", completed.Index, "error", err)
	}
	frames, err := a.manager.ScanoutComplete(completed.MonitorID, completed.Serial, completed.Index)
	if err != nil {
		// The output was dropped or relinked while the buffer was on
		// screen.
		a.logger.Debug("stale scan-out completion", "monitor_id", completed.MonitorID, "error", err)
		return
	}
	for _, frame := range frames {
		a.push(tab.FrameDone{MonitorID: frame.MonitorID, Index: frame.Index})
	}
	a.pump(completed.MonitorID)
}

func (a *actor) ready(request tab.SessionReady) error {
	if request.SessionID != "" && request.SessionID != a.sessionID {
		return fault.New(fault.KindBadTransition, "session_ready for %s on a connection of %s", request.SessionID, a.sessionID)
	}
	transition, err := a.server.sessions.MarkReady(a.sessionID)
	if err != nil {
		return err
	}
	a.server.sessionChanged(transition)
	a.server.focusIfIdle(a.sessionID)
	return nil
}

func (a *actor) createSession(request tab.SessionCreate) error {
	if a.role != session.RoleAdmin {
		return fault.New(fault.KindUnexpectedMessage, "session_create requires an admin session")
	}
	role, err := session.ParseRole(request.Role)
	if err != nil {
		return fault.New(fault.KindUnexpectedMessage, "%v", err)
	}
	info, secret, err := a.server.CreateSession(role, request.DisplayName)
	if err != nil {
		return err
	}
	a.push(tab.SessionCreated{Session: sessionInfo(info), Token: secret})
	return nil
}

func (a *actor) switchSession(request tab.SessionSwitch) error {
	if a.role != session.RoleAdmin {
		return fault.New(fault.KindUnexpectedMessage, "session_switch requires an admin session")
	}
	if err := a.server.FocusSession(request.SessionID); err != nil {
		// A refused switch is reported without closing the admin
		// connection.
		classified := fault.From(err)
		a.push(tab.Error{Kind: string(classified.Kind), Message: classified.Error()})
		return nil
	}
	a.logger.Info("session switched", "target", request.SessionID,
		"animation", request.Animation, "duration_ms", request.DurationMS)
	return nil
}

// dropOutput tears down the output for monitorID without FrameDone.
func (a *actor) dropOutput(monitorID string, reason string) {
	a.stopPresenting(monitorID)
	if released := a.manager.Drop(monitorID); released > 0 {
		a.outputDropped(monitorID, reason, released)
	}
}

// resized drops the output if monitor no longer matches its buffers.
func (a *actor) resized(monitor topology.Monitor) {
	if a.manager.DropIfResized(monitor) {
		a.stopPresenting(monitor.ID)
		a.outputDropped(monitor.ID, "resized", framebuffer.BuffersPerOutput)
	}
}

func (a *actor) outputDropped(monitorID, reason string, released int) {
	a.logger.Info("output dropped", "monitor_id", monitorID, "reason", reason, "buffers", released)
	a.server.record(journal.Record{
		Kind:      journal.KindOutputDropped,
		SessionID: a.sessionID,
		MonitorID: monitorID,
		Detail:    map[string]string{"reason": reason},
	})
}

func (a *actor) stopPresenting(monitorID string) {
	if current, ok := a.presenting[monitorID]; ok {
		current.cancel()
		delete(a.presenting, monitorID)
	}
}

// teardown releases every output and stops the actor.
func (a *actor) teardown() {
	for _, monitorID := range a.manager.Monitors() {
		a.dropOutput(monitorID, "session_ended")
	}
	a.stopped = true
}

// outputs returns the linked monitor ids.
func (a *actor) outputs() []string {
	return a.manager.Monitors()
}
