// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package sim implements an in-memory device driver. Its clock only
// advances when Tick is called, when a caller waits for an interrupt,
// or while Run is active, which makes AutoCirculate behaviour
// reproducible in tests and lets the daemon run without hardware.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/timecode"
)

// DriverName is the name the simulator is registered under.
const DriverName = "sim"

func init() {
	driver.RegisterDriver(DriverName, func(index int) (driver.Driver, error) {
		return New(WithIndex(index)), nil
	})
}

const (
	defaultFrameBuffers = 32
	defaultFrameBytes   = 64 * 1024
	defaultChannels     = 4
	defaultAncF1Offset  = 0x1000
	defaultAncF2Offset  = 0x800
	defaultVPID         = 0x85C80001
)

// Option configures a Device.
type Option func(*Device)

// WithIndex sets the device index and default name.
func WithIndex(index int) Option {
	return func(d *Device) {
		d.info.Index = index
		d.info.Name = fmt.Sprintf("sim%d", index)
	}
}

// WithName overrides the device name.
func WithName(name string) Option {
	return func(d *Device) { d.info.Name = name }
}

// WithFrameBuffers sets the number of frame buffers.
func WithFrameBuffers(n uint32) Option {
	return func(d *Device) { d.info.NumFrameBuffers = n }
}

// WithFrameBytes sets the size of each frame buffer.
func WithFrameBytes(n uint32) Option {
	return func(d *Device) { d.info.FrameBufferBytes = n }
}

// WithChannels sets the number of channels.
func WithChannels(n uint32) Option {
	return func(d *Device) { d.info.NumChannels = n }
}

// With2110 makes the device an SMPTE 2110 IP device.
func With2110() Option {
	return func(d *Device) { d.info.Is2110 = true }
}

// WithClock replaces the host clock.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// Device is a simulated card.
type Device struct {
	mu       sync.Mutex
	info     driver.Info
	now      func() time.Time
	regs     map[driver.Register]uint32
	memory   [][]byte
	xpts     map[driver.Crosspoint]*acChannel
	irqs     map[driver.Interrupt]uint32
	fields   uint32
	vbi      chan struct{}
	running  bool
	closed   bool
	stuck    map[driver.Crosspoint]bool
	failCmd  map[driver.Command]error
	failMsg  map[driver.MessageType]error
	commands []driver.ACData
}

// New returns a simulated device. Every channel starts in display
// mode at 1080i 29.97.
func New(opts ...Option) *Device {
	d := &Device{
		info: driver.Info{
			Name:             "sim0",
			ID:               0x10646700,
			SerialNumber:     "SIM00001",
			NumFrameBuffers:  defaultFrameBuffers,
			FrameBufferBytes: defaultFrameBytes,
			NumChannels:      defaultChannels,
			NumAudioSystems:  defaultChannels,
			AudioChannels:    16,
			AudioSampleRate:  48000,
		},
		now:     time.Now,
		regs:    make(map[driver.Register]uint32),
		xpts:    make(map[driver.Crosspoint]*acChannel),
		irqs:    make(map[driver.Interrupt]uint32),
		vbi:     make(chan struct{}),
		stuck:   make(map[driver.Crosspoint]bool),
		failCmd: make(map[driver.Command]error),
		failMsg: make(map[driver.MessageType]error),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.info.CanMultiLinkAudio = d.info.NumAudioSystems >= 4

	d.memory = make([][]byte, d.info.NumFrameBuffers)
	for i := range d.memory {
		d.memory[i] = make([]byte, d.info.FrameBufferBytes)
	}
	for _, x := range driver.AllCrosspoints() {
		c := &acChannel{xpt: x}
		c.reset()
		d.xpts[x] = c
	}
	for ch := driver.Channel1; ch < driver.Channel(d.info.NumChannels); ch++ {
		d.writeRegister(driver.GlobalControl(ch), uint32(timecode.Rate2997)&0x7, driver.MaskFrameRate, driver.ShiftFrameRate)
		d.writeRegister(driver.GlobalControl(ch), uint32(driver.Standard1080), driver.MaskStandard, driver.ShiftStandard)
		d.writeRegister(driver.SDIOutVPIDA(ch), defaultVPID, driver.MaskAll, 0)
		d.writeRegister(driver.ChannelControl(ch), 1, driver.MaskFrameStoreDisable, driver.ShiftFrameStoreDisable)
	}
	d.writeRegister(driver.VRegAncField1Offset, defaultAncF1Offset, driver.MaskAll, 0)
	d.writeRegister(driver.VRegAncField2Offset, defaultAncF2Offset, driver.MaskAll, 0)
	d.writeRegister(driver.VRegEveryFrameTaskFilter, uint32(driver.TaskModeStandard), driver.MaskAll, 0)
	return d
}

// Info implements driver.Driver.
func (d *Device) Info() driver.Info {
	return d.info
}

// ReadRegister implements driver.Driver.
func (d *Device) ReadRegister(reg driver.Register, mask, shift uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrClosed
	}
	return (d.regs[reg] & mask) >> shift, nil
}

// WriteRegister implements driver.Driver.
func (d *Device) WriteRegister(reg driver.Register, value, mask, shift uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrClosed
	}
	d.writeRegister(reg, value, mask, shift)
	return nil
}

func (d *Device) writeRegister(reg driver.Register, value, mask, shift uint32) {
	d.regs[reg] = (d.regs[reg] &^ mask) | ((value << shift) & mask)
}

func (d *Device) readRegister(reg driver.Register, mask, shift uint32) uint32 {
	return (d.regs[reg] & mask) >> shift
}

// DMATransfer implements driver.Driver.
func (d *Device) DMATransfer(ctx context.Context, req driver.DMARequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrClosed
	}
	if req.Frame >= uint32(len(d.memory)) {
		return fmt.Errorf("frame %d out of range", req.Frame)
	}
	mem := d.memory[req.Frame]
	if uint64(req.Offset)+uint64(len(req.Buffer)) > uint64(len(mem)) {
		return fmt.Errorf("%d bytes at offset %d overrun frame %d", len(req.Buffer), req.Offset, req.Frame)
	}
	if req.ToDevice {
		copy(mem[req.Offset:], req.Buffer)
	} else {
		copy(req.Buffer, mem[req.Offset:])
	}
	return nil
}

// InterruptCount implements driver.Driver.
func (d *Device) InterruptCount(irq driver.Interrupt) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrClosed
	}
	return d.irqs[irq], nil
}

// WaitForInterrupt implements driver.Driver. Unless Run is active the
// wait itself delivers the next vertical interrupt.
func (d *Device) WaitForInterrupt(ctx context.Context, irq driver.Interrupt, timeout time.Duration) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return driver.ErrClosed
	}
	if !d.running {
		d.tick()
		d.mu.Unlock()
		return nil
	}
	vbi := d.vbi
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-vbi:
		return nil
	case <-timer.C:
		return driver.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements driver.Driver.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Tick delivers one vertical interrupt to every channel.
func (d *Device) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tick()
}

// Run ticks at the given interval until ctx is done.
func (d *Device) Run(ctx context.Context, interval time.Duration) {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// SetStuck makes a stopping crosspoint never reach the disabled state
// until it is aborted.
func (d *Device) SetStuck(x driver.Crosspoint, stuck bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stuck[x] = stuck
}

// FailCommand makes every legacy command cmd fail with err. A nil err
// clears the fault.
func (d *Device) FailCommand(cmd driver.Command, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failCmd, cmd)
		return
	}
	d.failCmd[cmd] = err
}

// FailMessage makes every message of type t fail with err. A nil err
// clears the fault.
func (d *Device) FailMessage(t driver.MessageType, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failMsg, t)
		return
	}
	d.failMsg[t] = err
}

// Commands returns the legacy commands received so far.
func (d *Device) Commands() []driver.ACData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]driver.ACData(nil), d.commands...)
}

// State returns the state of crosspoint x.
func (d *Device) State(x driver.Crosspoint) driver.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.xpts[x]; ok {
		return c.state
	}
	return driver.StateInvalid
}

// FrameMemory returns a copy of device frame n.
func (d *Device) FrameMemory(n uint32) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.memory[n]...)
}

// ancRegion returns the device offsets of the field 1 and field 2 anc
// regions at the bottom of each frame.
func (d *Device) ancRegion() (f1Off, f1Size, f2Off, f2Size uint32) {
	size := d.info.FrameBufferBytes
	o1 := d.readRegister(driver.VRegAncField1Offset, driver.MaskAll, 0)
	o2 := d.readRegister(driver.VRegAncField2Offset, driver.MaskAll, 0)
	if o1 > size || o2 > size || o1 <= o2 {
		return 0, 0, 0, 0
	}
	return size - o1, o1 - o2, size - o2, o2
}

// tick must be called with mu held.
func (d *Device) tick() {
	now := d.now()
	d.fields++
	for _, c := range d.xpts {
		d.advance(c, now)
	}
	for ch := driver.Channel1; ch < driver.Channel(d.info.NumChannels); ch++ {
		d.irqs[driver.InputVertical(ch)]++
		d.irqs[driver.OutputVertical(ch)]++
	}
	close(d.vbi)
	d.vbi = make(chan struct{})
}
