// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package framebuffer

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/topology"
)

type slot struct {
	state      State
	descriptor Descriptor
	handle     ScanoutHandle
	fence      Fence
	presented  bool
}

type output struct {
	monitorID string
	serial    uint64
	width     int
	height    int
	slots     [BuffersPerOutput]slot
	// pending holds Submitted and ScanningOut indices in submit order.
	pending []int
}

// Manager holds one session's outputs, keyed by monitor id.
type Manager struct {
	importer Importer
	logger   *slog.Logger
	outputs  map[string]*output
	serial   uint64
}

// NewManager returns a manager that imports buffers through importer.
func NewManager(importer Importer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		importer: importer,
		logger:   logger,
		outputs:  make(map[string]*output),
	}
}

// Link binds a double buffer to monitor. It takes ownership of every
// descriptor file whether or not it succeeds. On failure no output is
// created and an existing output for the monitor is left untouched; on
// success an existing output is replaced and torn down.
func (m *Manager) Link(monitor topology.Monitor, descriptors []Descriptor) (uint64, error) {
	if err := checkDescriptors(monitor, descriptors); err != nil {
		closeDescriptors(descriptors)
		return 0, err
	}

	linked := &output{
		monitorID: monitor.ID,
		width:     monitor.Width,
		height:    monitor.Height,
	}
	for _, descriptor := range descriptors {
		handle, err := m.importer.Import(monitor.ID, descriptor)
		if err != nil {
			for _, imported := range linked.slots {
				if imported.handle != nil {
					imported.handle.Release()
				}
			}
			closeDescriptors(descriptors)
			return 0, fault.New(importFailureKind(err),
				"importing buffer %d for monitor %s: %v", descriptor.Index, monitor.ID, err)
		}
		linked.slots[descriptor.Index] = slot{state: Free, descriptor: descriptor, handle: handle}
	}

	if previous, ok := m.outputs[monitor.ID]; ok {
		m.logger.Info("replacing linked output", "monitor_id", monitor.ID, "serial", previous.serial)
		m.release(previous)
	}
	m.serial++
	linked.serial = m.serial
	m.outputs[monitor.ID] = linked
	return linked.serial, nil
}

// importFailureKind keeps the kind an importer classified its failure
// as. Anything else is an I/O failure on the descriptor.
func importFailureKind(err error) fault.Kind {
	var classified *fault.Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return fault.KindIOFailure
}

func checkDescriptors(monitor topology.Monitor, descriptors []Descriptor) error {
	if len(descriptors) != BuffersPerOutput {
		return fault.New(fault.KindUnexpectedMessage,
			"monitor %s: framebuffer_link needs %d buffers, got %d", monitor.ID, BuffersPerOutput, len(descriptors))
	}
	var seen [BuffersPerOutput]bool
	for _, descriptor := range descriptors {
		if descriptor.Index < 0 || descriptor.Index >= BuffersPerOutput || seen[descriptor.Index] {
			return fault.New(fault.KindUnexpectedMessage, "monitor %s: invalid or repeated buffer index %d", monitor.ID, descriptor.Index)
		}
		seen[descriptor.Index] = true
		if descriptor.File == nil {
			return fault.New(fault.KindUnexpectedMessage, "monitor %s: buffer %d has no descriptor", monitor.ID, descriptor.Index)
		}
		if descriptor.Width != monitor.Width || descriptor.Height != monitor.Height {
			return fault.New(fault.KindBufferDimensionMismatch, "monitor %s is %dx%d, buffer %d is %dx%d",
				monitor.ID, monitor.Width, monitor.Height, descriptor.Index, descriptor.Width, descriptor.Height)
		}
		if descriptor.Stride <= 0 || descriptor.Offset < 0 {
			return fault.New(fault.KindBufferDimensionMismatch, "monitor %s: buffer %d has stride %d offset %d",
				monitor.ID, descriptor.Index, descriptor.Stride, descriptor.Offset)
		}
	}
	return nil
}

// AcquireWritable hands out the lowest-index Free buffer.
func (m *Manager) AcquireWritable(monitorID string) (int, error) {
	linked, err := m.lookup(monitorID)
	if err != nil {
		return 0, err
	}
	for index := range linked.slots {
		if linked.slots[index].state == Free {
			linked.slots[index].state = Writable
			return index, nil
		}
	}
	return 0, fault.New(fault.KindNoBuffers, "monitor %s: both buffers in flight", monitorID)
}

// Submit queues a Writable buffer for scan-out. On success the manager
// owns fence (which may be nil); on failure the caller keeps it.
func (m *Manager) Submit(monitorID string, index int, fence Fence) error {
	linked, err := m.lookup(monitorID)
	if err != nil {
		return err
	}
	if index < 0 || index >= BuffersPerOutput {
		return fault.New(fault.KindBadTransition, "monitor %s: no buffer %d", monitorID, index)
	}
	buffer := &linked.slots[index]
	if buffer.state != Writable {
		return fault.New(fault.KindBadTransition, "monitor %s: buffer %d is %s, not writable", monitorID, index, buffer.state)
	}
	buffer.state = Submitted
	buffer.fence = fence
	buffer.presented = false
	linked.pending = append(linked.pending, index)
	return nil
}

// BeginScanout moves the oldest Submitted buffer to ScanningOut, if
// nothing is scanning out yet.
func (m *Manager) BeginScanout(monitorID string) (Scanout, bool) {
	linked, ok := m.outputs[monitorID]
	if !ok {
		return Scanout{}, false
	}
	for _, index := range linked.pending {
		if linked.slots[index].state == ScanningOut {
			return Scanout{}, false
		}
	}
	for _, index := range linked.pending {
		buffer := &linked.slots[index]
		if buffer.state != Submitted || buffer.presented {
			continue
		}
		buffer.state = ScanningOut
		return Scanout{
			MonitorID:  monitorID,
			Serial:     linked.serial,
			Index:      index,
			Handle:     buffer.handle,
			Fence:      buffer.fence,
			Descriptor: buffer.descriptor,
		}, true
	}
	return Scanout{}, false
}

// ScanoutComplete records that buffer index of the output generation
// serial has been presented, then frees every buffer at the head of
// the submit queue that has completed. The returned FrameDone values
// are in submit order.
func (m *Manager) ScanoutComplete(monitorID string, serial uint64, index int) ([]FrameDone, error) {
	linked, ok := m.outputs[monitorID]
	if !ok || linked.serial != serial {
		return nil, fault.New(fault.KindMonitorGone, "monitor %s: output generation %d is gone", monitorID, serial)
	}
	if index < 0 || index >= BuffersPerOutput {
		return nil, fault.New(fault.KindBadTransition, "monitor %s: no buffer %d", monitorID, index)
	}
	buffer := &linked.slots[index]
	if buffer.state != Submitted && buffer.state != ScanningOut {
		return nil, fault.New(fault.KindBadTransition, "monitor %s: buffer %d is %s, not in flight", monitorID, index, buffer.state)
	}
	buffer.presented = true

	var done []FrameDone
	for len(linked.pending) > 0 {
		head := &linked.slots[linked.pending[0]]
		if !head.presented {
			break
		}
		if head.fence != nil {
			if err := head.fence.Release(); err != nil {
				m.logger.Warn("releasing fence", "monitor_id", monitorID, "index", linked.pending[0], "error", err)
			}
			head.fence = nil
		}
		head.state = Free
		head.presented = false
		done = append(done, FrameDone{MonitorID: monitorID, Index: linked.pending[0]})
		linked.pending = linked.pending[1:]
	}
	return done, nil
}

// States returns the buffer states of a linked monitor.
func (m *Manager) States(monitorID string) ([BuffersPerOutput]State, bool) {
	var states [BuffersPerOutput]State
	linked, ok := m.outputs[monitorID]
	if !ok {
		return states, false
	}
	for index := range linked.slots {
		states[index] = linked.slots[index].state
	}
	return states, true
}

// Linked reports whether monitorID has an output.
func (m *Manager) Linked(monitorID string) bool {
	_, ok := m.outputs[monitorID]
	return ok
}

// Monitors returns the linked monitor ids in sorted order.
func (m *Manager) Monitors() []string {
	ids := make([]string, 0, len(m.outputs))
	for id := range m.outputs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Drop tears down the output for monitorID and returns the number of
// buffers released (0 if nothing was linked). No FrameDone is produced.
func (m *Manager) Drop(monitorID string) int {
	linked, ok := m.outputs[monitorID]
	if !ok {
		return 0
	}
	delete(m.outputs, monitorID)
	return m.release(linked)
}

// DropIfResized tears down the output when monitor's resolution no
// longer matches its buffers. Returns true if it did.
func (m *Manager) DropIfResized(monitor topology.Monitor) bool {
	linked, ok := m.outputs[monitor.ID]
	if !ok || (linked.width == monitor.Width && linked.height == monitor.Height) {
		return false
	}
	m.Drop(monitor.ID)
	return true
}

// Close tears down every output and returns the number of buffers
// released.
func (m *Manager) Close() int {
	released := 0
	for _, id := range m.Monitors() {
		released += m.Drop(id)
	}
	return released
}

func (m *Manager) lookup(monitorID string) (*output, error) {
	linked, ok := m.outputs[monitorID]
	if !ok {
		return nil, fault.New(fault.KindMonitorGone, "no output linked for monitor %s", monitorID)
	}
	return linked, nil
}

// release frees everything an output holds and returns the number of
// buffers it had.
func (m *Manager) release(linked *output) int {
	released := 0
	for index := range linked.slots {
		buffer := &linked.slots[index]
		if buffer.descriptor.File == nil && buffer.handle == nil {
			continue
		}
		var errs []error
		if buffer.fence != nil {
			errs = append(errs, buffer.fence.Release())
		}
		if buffer.handle != nil {
			errs = append(errs, buffer.handle.Release())
		}
		if buffer.descriptor.File != nil {
			errs = append(errs, buffer.descriptor.File.Close())
		}
		if err := errors.Join(errs...); err != nil {
			m.logger.Warn("releasing buffer", "monitor_id", linked.monitorID, "index", index, "error", err)
		}
		*buffer = slot{}
		released++
	}
	linked.pending = nil
	return released
}

func closeDescriptors(descriptors []Descriptor) {
	for _, descriptor := range descriptors {
		if descriptor.File != nil {
			descriptor.File.Close()
		}
	}
}
