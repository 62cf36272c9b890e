// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock stopped at initial.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.registered = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a manually advanced Clock. It is safe for concurrent
// use. Do not call Advance from inside an AfterFunc callback.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	pending    []*alarm
	registered *sync.Cond
}

// alarm is one pending After, AfterFunc, or ticker deadline.
type alarm struct {
	at       time.Time
	period   time.Duration // non-zero for tickers
	channel  chan time.Time
	callback func()
	done     bool // fired (one-shot) or stopped
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&alarm{at: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc registers f. A non-positive d runs f before returning.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	entry := &alarm{at: c.now.Add(d), callback: f}
	c.addLocked(entry)
	c.mu.Unlock()
	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if entry.done {
			return false
		}
		entry.done = true
		return true
	}}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	entry := &alarm{at: c.now.Add(d), period: d, channel: channel}
	c.addLocked(entry)
	c.mu.Unlock()
	return &Ticker{C: channel, stop: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entry.done = true
	}}
}

func (c *FakeClock) addLocked(entry *alarm) {
	c.pending = append(c.pending, entry)
	c.registered.Broadcast()
}

// Advance moves time forward by d and fires every deadline that falls
// inside the window, earliest first. Callbacks run on the calling
// goroutine; channel sends drop when the buffer is full.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, entry := range due {
			if entry.callback != nil {
				entry.callback()
				continue
			}
			select {
			case entry.channel <- target:
			default:
			}
		}
	}
}

// takeDue removes expired one-shot alarms, reschedules tickers, and
// returns everything that should fire, ordered by deadline.
func (c *FakeClock) takeDue(target time.Time) []*alarm {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*alarm
	for _, entry := range c.pending {
		switch {
		case entry.done:
		case entry.at.After(target):
			keep = append(keep, entry)
		default:
			due = append(due, entry)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, entry := range due {
		if entry.period > 0 {
			entry.at = entry.at.Add(entry.period)
			keep = append(keep, entry)
		} else {
			entry.done = true
		}
	}
	c.pending = keep
	return due
}

// WaitForTimers blocks until at least n alarms are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of armed alarms.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *FakeClock) activeLocked() int {
	count := 0
	for _, entry := range c.pending {
		if !entry.done {
			count++
		}
	}
	return count
}
