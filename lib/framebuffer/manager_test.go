// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package framebuffer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"

	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/topology"
)

type fakeHandle struct {
	importer *fakeImporter
	name     string
}

func (h *fakeHandle) Release() error {
	h.importer.released = append(h.importer.released, h.name)
	return nil
}

type fakeImporter struct {
	failIndex int // -1: never fail
	failWith  error
	imported  []string
	released  []string
}

func (i *fakeImporter) Import(monitorID string, descriptor Descriptor) (ScanoutHandle, error) {
	if descriptor.Index == i.failIndex {
		if i.failWith != nil {
			return nil, i.failWith
		}
		return nil, fmt.Errorf("import refused")
	}
	name := fmt.Sprintf("%s/%d", monitorID, descriptor.Index)
	i.imported = append(i.imported, name)
	return &fakeHandle{importer: i, name: name}, nil
}

type fakeFence struct{ released int }

func (f *fakeFence) Wait(context.Context) error { return nil }
func (f *fakeFence) Release() error             { f.released++; return nil }

var display = topology.Monitor{ID: "mon_a", Width: 1920, Height: 1080, RefreshRate: 60}

func descriptors(t *testing.T, width, height int) []Descriptor {
	t.Helper()
	var result []Descriptor
	for index := range BuffersPerOutput {
		file, err := os.Open(os.DevNull)
		if err != nil {
			t.Fatal(err)
		}
		result = append(result, Descriptor{
			Index: index, File: file, Width: width, Height: height, Stride: width * 4,
		})
	}
	return result
}

func linkedManager(t *testing.T) (*Manager, *fakeImporter, uint64) {
	t.Helper()
	importer := &fakeImporter{failIndex: -1}
	manager := NewManager(importer, nil)
	serial, err := manager.Link(display, descriptors(t, display.Width, display.Height))
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	return manager, importer, serial
}

func requireStates(t *testing.T, manager *Manager, want ...State) {
	t.Helper()
	states, ok := manager.States(display.ID)
	if !ok {
		t.Fatal("output not linked")
	}
	if !reflect.DeepEqual(states[:], want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
}

func TestAcquireWritable_Backpressure(t *testing.T) {
	manager, _, serial := linkedManager(t)

	first, err := manager.AcquireWritable(display.ID)
	if err != nil || first != 0 {
		t.Fatalf("first acquire = %d, %v; want 0", first, err)
	}
	second, err := manager.AcquireWritable(display.ID)
	if err != nil || second != 1 {
		t.Fatalf("second acquire = %d, %v; want 1", second, err)
	}
	if _, err := manager.AcquireWritable(display.ID); !errors.Is(err, fault.ErrNoBuffers) {
		t.Fatalf("third acquire error = %v, want no_buffers", err)
	}
	requireStates(t, manager, Writable, Writable)

	if err := manager.Submit(display.ID, 0, nil); err != nil {
		t.Fatalf("Submit(0): %v", err)
	}
	scanout, ok := manager.BeginScanout(display.ID)
	if !ok || scanout.Index != 0 {
		t.Fatalf("BeginScanout = %+v, %v", scanout, ok)
	}
	done, err := manager.ScanoutComplete(display.ID, serial, 0)
	if err != nil {
		t.Fatalf("ScanoutComplete: %v", err)
	}
	if want := []FrameDone{{MonitorID: display.ID, Index: 0}}; !reflect.DeepEqual(done, want) {
		t.Fatalf("FrameDone = %+v, want %+v", done, want)
	}

	again, err := manager.AcquireWritable(display.ID)
	if err != nil || again != 0 {
		t.Fatalf("acquire after frame_done = %d, %v; want 0", again, err)
	}
}

func TestScanoutComplete_FIFOOrder(t *testing.T) {
	manager, _, serial := linkedManager(t)
	fences := []*fakeFence{{}, {}}
	for index := range BuffersPerOutput {
		if _, err := manager.AcquireWritable(display.ID); err != nil {
			t.Fatal(err)
		}
		if err := manager.Submit(display.ID, index, fences[index]); err != nil {
			t.Fatal(err)
		}
	}
	requireStates(t, manager, Submitted, Submitted)

	done, err := manager.ScanoutComplete(display.ID, serial, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 0 {
		t.Fatalf("completion of 1 before 0 emitted %+v", done)
	}
	if fences[1].released != 0 {
		t.Error("fence 1 released before buffer freed")
	}

	done, err = manager.ScanoutComplete(display.ID, serial, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []FrameDone{{MonitorID: display.ID, Index: 0}, {MonitorID: display.ID, Index: 1}}
	if !reflect.DeepEqual(done, want) {
		t.Fatalf("FrameDone = %+v, want %+v", done, want)
	}
	requireStates(t, manager, Free, Free)
	for index, fence := range fences {
		if fence.released != 1 {
			t.Errorf("fence %d released %d times, want 1", index, fence.released)
		}
	}
}

func TestBeginScanout_OneAtATime(t *testing.T) {
	manager, _, serial := linkedManager(t)
	for index := range BuffersPerOutput {
		manager.AcquireWritable(display.ID)
		manager.Submit(display.ID, index, nil)
	}
	first, ok := manager.BeginScanout(display.ID)
	if !ok || first.Index != 0 || first.Serial != serial {
		t.Fatalf("first scanout = %+v, %v", first, ok)
	}
	if _, ok := manager.BeginScanout(display.ID); ok {
		t.Fatal("second BeginScanout while 0 is scanning out")
	}
	requireStates(t, manager, ScanningOut, Submitted)

	manager.ScanoutComplete(display.ID, serial, 0)
	second, ok := manager.BeginScanout(display.ID)
	if !ok || second.Index != 1 {
		t.Fatalf("second scanout = %+v, %v", second, ok)
	}
}

func TestSubmit_RejectsNonWritable(t *testing.T) {
	manager, _, _ := linkedManager(t)
	fence := &fakeFence{}
	err := manager.Submit(display.ID, 1, fence)
	if !errors.Is(err, fault.ErrBadTransition) {
		t.Fatalf("Submit(free) error = %v, want bad_transition", err)
	}
	requireStates(t, manager, Free, Free)

	manager.AcquireWritable(display.ID)
	manager.Submit(display.ID, 0, nil)
	if err := manager.Submit(display.ID, 0, nil); !errors.Is(err, fault.ErrBadTransition) {
		t.Fatalf("double Submit error = %v, want bad_transition", err)
	}
	if err := manager.Submit(display.ID, 7, nil); !errors.Is(err, fault.ErrBadTransition) {
		t.Fatalf("Submit(7) error = %v, want bad_transition", err)
	}
	requireStates(t, manager, Submitted, Free)
}

func TestLink_DimensionMismatch(t *testing.T) {
	importer := &fakeImporter{failIndex: -1}
	manager := NewManager(importer, nil)
	given := descriptors(t, 1280, 720)

	_, err := manager.Link(display, given)
	if !errors.Is(err, fault.ErrBufferDimensionMismatch) {
		t.Fatalf("Link error = %v, want buffer_dimension_mismatch", err)
	}
	if manager.Linked(display.ID) {
		t.Error("failed Link created an output")
	}
	if len(importer.imported) != 0 {
		t.Errorf("imported %v despite mismatch", importer.imported)
	}
	if _, statErr := given[0].File.Stat(); statErr == nil {
		t.Error("descriptor left open after failed Link")
	}
}

func TestLink_ImportFailureReleasesPartialWork(t *testing.T) {
	importer := &fakeImporter{failIndex: 1}
	manager := NewManager(importer, nil)
	_, err := manager.Link(display, descriptors(t, display.Width, display.Height))
	if !errors.Is(err, fault.ErrIOFailure) {
		t.Fatalf("Link error = %v, want io_failure", err)
	}
	if manager.Linked(display.ID) {
		t.Error("failed Link created an output")
	}
	if !reflect.DeepEqual(importer.released, []string{"mon_a/0"}) {
		t.Errorf("released = %v, want [mon_a/0]", importer.released)
	}
}

func TestLink_ImportFailureKeepsImporterKind(t *testing.T) {
	importer := &fakeImporter{
		failIndex: 0,
		failWith:  fault.New(fault.KindBufferDimensionMismatch, "buffer 0 holds 16 bytes"),
	}
	manager := NewManager(importer, nil)
	_, err := manager.Link(display, descriptors(t, display.Width, display.Height))
	if !errors.Is(err, fault.ErrBufferDimensionMismatch) {
		t.Fatalf("Link error = %v, want buffer_dimension_mismatch", err)
	}
	if manager.Linked(display.ID) {
		t.Error("failed Link created an output")
	}
}

func TestLink_WrongBufferCount(t *testing.T) {
	manager := NewManager(&fakeImporter{failIndex: -1}, nil)
	_, err := manager.Link(display, descriptors(t, display.Width, display.Height)[:1])
	if !errors.Is(err, fault.ErrUnexpectedMessage) {
		t.Fatalf("Link error = %v, want unexpected_message", err)
	}
}

func TestDrop_ReleasesWithoutFrameDone(t *testing.T) {
	manager, importer, serial := linkedManager(t)
	fence := &fakeFence{}
	manager.AcquireWritable(display.ID)
	manager.Submit(display.ID, 0, fence)
	manager.BeginScanout(display.ID)

	if released := manager.Drop(display.ID); released != 2 {
		t.Fatalf("Drop released %d buffers, want 2", released)
	}
	if fence.released != 1 {
		t.Errorf("fence released %d times, want 1", fence.released)
	}
	if len(importer.released) != 2 {
		t.Errorf("handles released = %v, want both", importer.released)
	}

	done, err := manager.ScanoutComplete(display.ID, serial, 0)
	if !errors.Is(err, fault.ErrMonitorGone) || len(done) != 0 {
		t.Fatalf("late completion = %+v, %v; want monitor_gone and nothing", done, err)
	}
	if _, err := manager.AcquireWritable(display.ID); !errors.Is(err, fault.ErrMonitorGone) {
		t.Fatalf("acquire after Drop error = %v, want monitor_gone", err)
	}
}

func TestLink_RelinkInvalidatesOldSerial(t *testing.T) {
	manager, _, oldSerial := linkedManager(t)
	manager.AcquireWritable(display.ID)
	manager.Submit(display.ID, 0, nil)

	newSerial, err := manager.Link(display, descriptors(t, display.Width, display.Height))
	if err != nil {
		t.Fatal(err)
	}
	if newSerial == oldSerial {
		t.Fatal("relink reused serial")
	}
	if _, err := manager.ScanoutComplete(display.ID, oldSerial, 0); !errors.Is(err, fault.ErrMonitorGone) {
		t.Fatalf("stale completion error = %v, want monitor_gone", err)
	}
	requireStates(t, manager, Free, Free)
}

func TestDropIfResized(t *testing.T) {
	manager, _, _ := linkedManager(t)
	if manager.DropIfResized(display) {
		t.Error("dropped output for unchanged monitor")
	}
	resized := display
	resized.Width = 1280
	if !manager.DropIfResized(resized) || manager.Linked(display.ID) {
		t.Error("output kept after resolution change")
	}
}

func TestClose(t *testing.T) {
	manager, _, _ := linkedManager(t)
	other := topology.Monitor{ID: "mon_b", Width: 800, Height: 600}
	if _, err := manager.Link(other, descriptors(t, 800, 600)); err != nil {
		t.Fatal(err)
	}
	if released := manager.Close(); released != 4 {
		t.Errorf("Close released %d, want 4", released)
	}
	if len(manager.Monitors()) != 0 {
		t.Errorf("Monitors after Close = %v", manager.Monitors())
	}
}
