// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch delivers server events to one connection in the
// order they were produced.
//
// Every connection has a Queue. Producers (the connection's own
// handler, its session actor, and cross-session broadcasts) call
// Push, which never blocks and never drops. The connection's writer
// goroutine waits on Ready and takes everything queued with Drain.
// The event type is the closed set of server-to-client tab messages.
package dispatch

import (
	"sync"

	"github.com/shift-foundation/shift/tab"
)

// Event is anything the server sends a session.
type Event = tab.ServerMessage

// Queue is an unbounded FIFO of events for one connection.
type Queue struct {
	mu       sync.Mutex
	events   []Event
	closing  bool
	ready    chan struct{}
	pushed   uint64
	drained  uint64
	rejected uint64
}

// NewQueue returns an empty, open queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends an event. Events pushed after CloseAfterDrain are
// discarded and Push returns false.
func (q *Queue) Push(event Event) bool {
	q.mu.Lock()
	if q.closing {
		q.rejected++
		q.mu.Unlock()
		return false
	}
	q.events = append(q.events, event)
	q.pushed++
	q.mu.Unlock()
	q.signal()
	return true
}

// Ready receives a wakeup after Push or CloseAfterDrain. Wakeups
// coalesce, so each wakeup must be followed by a full Drain.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes and returns every queued event, oldest first. done is
// true once the queue is closed and empty: the writer should flush and
// stop.
func (q *Queue) Drain() (events []Event, done bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	events = q.events
	q.events = nil
	q.drained += uint64(len(events))
	return events, q.closing
}

// CloseAfterDrain stops accepting events. Events already queued are
// still delivered by the next Drain, which then reports done.
func (q *Queue) CloseAfterDrain() {
	q.mu.Lock()
	already := q.closing
	q.closing = true
	q.mu.Unlock()
	if !already {
		q.signal()
	}
}

// Closing reports whether CloseAfterDrain has been called.
func (q *Queue) Closing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closing
}

// Stats reports counters for diagnostics.
type Stats struct {
	Pushed   uint64
	Drained  uint64
	Pending  int
	Rejected uint64
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Pushed: q.pushed, Drained: q.drained, Pending: len(q.events), Rejected: q.rejected}
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
