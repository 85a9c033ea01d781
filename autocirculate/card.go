// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package autocirculate drives the AutoCirculate frame ring of an NTV2
// device: it allocates frame ranges, moves channels through their
// state machine, transfers frames and reads back status.
package autocirculate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/TheCacophonyProject/autocirculate/driver"
)

// OverlapPolicy decides what Init does when an explicit frame range
// overlaps a range claimed by another running crosspoint.
type OverlapPolicy int

const (
	// OverlapWarn logs the overlap and carries on.
	OverlapWarn OverlapPolicy = iota
	// OverlapReject fails Init with ErrAllocation.
	OverlapReject
)

// ParseOverlapPolicy converts "warn" or "reject" to a policy.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch s {
	case "", "warn":
		return OverlapWarn, nil
	case "reject":
		return OverlapReject, nil
	}
	return OverlapWarn, errors.Errorf("unknown overlap policy %q", s)
}

func (p OverlapPolicy) String() string {
	if p == OverlapReject {
		return "reject"
	}
	return "warn"
}

// Locker is a lock that can fail, such as a lock file shared with
// other processes.
type Locker interface {
	Lock() error
	Unlock() error
}

const defaultStopWait = 100 * time.Millisecond

// Option configures a Card.
type Option func(*Card)

// WithOverlapPolicy sets how explicit overlapping ranges are handled.
func WithOverlapPolicy(p OverlapPolicy) Option {
	return func(c *Card) { c.overlap = p }
}

// WithAllocationLock adds a cross-process lock that is held, together
// with the card's own mutex, while frames are allocated.
func WithAllocationLock(l Locker) Option {
	return func(c *Card) { c.allocLock = l }
}

// WithLogFunc replaces the function log lines are written to.
func WithLogFunc(f func(string)) Option {
	return func(c *Card) { c.logFunc = f }
}

// WithClassicTimecodeWorkaround enables or disables copying the
// control panel's selected input timecode into the default slot after
// each capture on devices running standard tasks.
func WithClassicTimecodeWorkaround(enable bool) Option {
	return func(c *Card) { c.classicTC = enable }
}

// WithStopWait sets how long Stop waits for the next vertical interrupt
// before checking that the channel stopped.
func WithStopWait(d time.Duration) Option {
	return func(c *Card) { c.stopWait = d }
}

// Card is an open device.
type Card struct {
	drv       driver.Driver
	info      driver.Info
	logFunc   func(string)
	overlap   OverlapPolicy
	allocLock Locker
	classicTC bool
	stopWait  time.Duration

	// allocMu guards frame allocation between Init calls of this process.
	allocMu sync.Mutex
	rtpSeq  uint32
	closed  int32
}

// Open wraps an opened driver.
func Open(drv driver.Driver, opts ...Option) (*Card, error) {
	if drv == nil {
		return nil, errors.Wrap(ErrNotOpen, "no driver")
	}
	c := &Card{
		drv:       drv,
		info:      drv.Info(),
		logFunc:   func(s string) { log.Print(s) },
		classicTC: true,
		stopWait:  defaultStopWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OpenDevice opens device index of the named driver.
func OpenDevice(name string, index int, opts ...Option) (*Card, error) {
	drv, err := driver.Open(name, index)
	if err != nil {
		return nil, errors.Wrapf(ErrNotOpen, "%s device %d: %v", name, index, err)
	}
	return Open(drv, opts...)
}

// Info describes the device.
func (c *Card) Info() driver.Info {
	return c.info
}

// Driver returns the underlying driver.
func (c *Card) Driver() driver.Driver {
	return c.drv
}

// Close closes the driver. Later calls on the card fail with ErrNotOpen.
func (c *Card) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	return c.drv.Close()
}

func (c *Card) checkOpen() error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return errors.Wrapf(ErrNotOpen, "%s is closed", c.info)
	}
	return nil
}

func (c *Card) logf(format string, v ...interface{}) {
	c.logFunc(c.info.String() + ": " + fmt.Sprintf(format, v...))
}

func (c *Card) checkChannel(ch driver.Channel) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if !ch.Valid() || uint32(ch) >= c.info.NumChannels {
		return errors.Wrapf(ErrRange, "%s is not a channel of %s", ch, c.info)
	}
	return nil
}

// crosspoint returns the input or output crosspoint of ch according to
// the channel's configured mode.
func (c *Card) crosspoint(ch driver.Channel) (driver.Crosspoint, error) {
	if err := c.checkChannel(ch); err != nil {
		return driver.CrosspointInvalid, err
	}
	mode, err := driver.ReadMode(c.drv, ch)
	if err != nil {
		return driver.CrosspointInvalid, driverErr("read mode", err)
	}
	if mode == driver.ModeCapture {
		return driver.InputCrosspoint(ch), nil
	}
	return driver.OutputCrosspoint(ch), nil
}

func (c *Card) command(ctx context.Context, data *driver.ACData) error {
	return driverErr(data.String(), c.drv.AutoCirculate(ctx, data))
}

func (c *Card) readVirtual(reg driver.Register) uint32 {
	v, err := driver.ReadVirtual(c.drv, reg)
	if err != nil {
		return 0
	}
	return v
}

func (c *Card) taskMode() driver.TaskMode {
	v, err := driver.ReadVirtual(c.drv, driver.VRegEveryFrameTaskFilter)
	if err != nil {
		return driver.TaskModeOEM
	}
	return driver.TaskMode(v)
}

func (c *Card) nextRTPSequence() uint16 {
	return uint16(atomic.AddUint32(&c.rtpSeq, 2))
}
