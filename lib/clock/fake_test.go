// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresOnAdvance(t *testing.T) {
	fake := Fake(epoch)
	fired := 0
	fake.AfterFunc(5*time.Second, func() { fired++ })

	fake.Advance(4 * time.Second)
	if fired != 0 {
		t.Fatalf("fired = %d before deadline, want 0", fired)
	}
	fake.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d at deadline, want 1", fired)
	}
	fake.Advance(time.Minute)
	if fired != 1 {
		t.Fatalf("one-shot fired %d times", fired)
	}
}

func TestFake_StopPreventsCallback(t *testing.T) {
	fake := Fake(epoch)
	timer := fake.AfterFunc(time.Second, func() { t.Error("stopped timer fired") })
	if !timer.Stop() {
		t.Error("Stop() = false for armed timer")
	}
	if timer.Stop() {
		t.Error("second Stop() = true")
	}
	fake.Advance(time.Hour)
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", fake.PendingCount())
	}
}

func TestFake_CallbacksFireInDeadlineOrder(t *testing.T) {
	fake := Fake(epoch)
	var order []int
	fake.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	fake.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	fake.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	fake.Advance(10 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}

func TestFake_After(t *testing.T) {
	fake := Fake(epoch)
	channel := fake.After(time.Second)
	select {
	case <-channel:
		t.Fatal("After delivered before Advance")
	default:
	}
	fake.Advance(time.Second)
	select {
	case got := <-channel:
		if !got.Equal(epoch.Add(time.Second)) {
			t.Errorf("After delivered %v", got)
		}
	default:
		t.Fatal("After did not deliver")
	}

	immediate := fake.After(0)
	select {
	case <-immediate:
	default:
		t.Fatal("After(0) did not deliver immediately")
	}
}

func TestFake_Ticker(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		fake.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}

	ticker.Stop()
	fake.Advance(time.Second)
	select {
	case <-ticker.C:
		t.Error("stopped ticker delivered")
	default:
	}
}

func TestFake_WaitForTimers(t *testing.T) {
	fake := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-fake.After(time.Minute)
		close(done)
	}()
	fake.WaitForTimers(1)
	fake.Advance(time.Minute)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never woke")
	}
}
