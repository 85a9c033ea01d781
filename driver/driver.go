// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package driver defines the boundary between the AutoCirculate client
// and a device driver: register access, the legacy AutoCirculate
// command, structured messages, DMA and interrupts.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned when an interrupt wait expires.
	ErrTimeout = errors.New("timed out waiting for interrupt")

	// ErrClosed is returned by calls on a closed driver.
	ErrClosed = errors.New("driver closed")
)

// Info describes an opened device.
type Info struct {
	Index           int
	Name            string
	ID              uint32
	SerialNumber    string
	NumFrameBuffers uint32
	// FrameBufferBytes is the size of one frame buffer in device memory.
	FrameBufferBytes uint32
	NumChannels      uint32
	NumAudioSystems  uint32
	// AudioChannels is the number of channels per audio sample frame.
	AudioChannels     uint32
	AudioSampleRate   uint32
	CanMultiLinkAudio bool
	// Is2110 is set when the device's outputs are SMPTE 2110 streams.
	Is2110 bool
}

// String returns the name used to prefix log messages.
func (i Info) String() string {
	if i.Name != "" {
		return i.Name
	}
	return fmt.Sprintf("device%d", i.Index)
}

// ACData is the legacy AutoCirculate command block.
type ACData struct {
	Command    Command
	Crosspoint Crosspoint
	LVal1      int32
	LVal2      int32
	LVal3      int32
	LVal4      int32
	LVal5      int32
	LVal6      int32
	BVal1      bool
	BVal2      bool
	BVal3      bool
	BVal4      bool
	BVal5      bool
	BVal6      bool
	BVal7      bool
	BVal8      bool
}

func (d *ACData) String() string {
	return fmt.Sprintf("%s %s", d.Command, d.Crosspoint)
}

// DMARequest moves bytes between host memory and one device frame.
type DMARequest struct {
	// ToDevice selects host-to-device direction.
	ToDevice bool
	Frame    uint32
	Offset   uint32
	Buffer   []byte
}

// Driver is an opened device.
type Driver interface {
	Info() Info
	ReadRegister(reg Register, mask, shift uint32) (uint32, error)
	WriteRegister(reg Register, value, mask, shift uint32) error
	// AutoCirculate issues a legacy command.
	AutoCirculate(ctx context.Context, data *ACData) error
	// Message sends a structured message; the driver fills in the
	// response fields in place.
	Message(ctx context.Context, msg Message) error
	DMATransfer(ctx context.Context, req DMARequest) error
	// WaitForInterrupt blocks until the next occurrence of irq.
	WaitForInterrupt(ctx context.Context, irq Interrupt, timeout time.Duration) error
	InterruptCount(irq Interrupt) (uint32, error)
	Close() error
}

// Opener opens the index'th device handled by a driver.
type Opener func(index int) (Driver, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Opener)
)

// RegisterDriver makes a driver available by name. It panics if the name is
// already registered.
func RegisterDriver(name string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if open == nil {
		panic("driver: RegisterDriver opener is nil")
	}
	if _, dup := registry[name]; dup {
		panic("driver: RegisterDriver called twice for driver " + name)
	}
	registry[name] = open
}

// Drivers returns the sorted names of the registered drivers.
func Drivers() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens device index using the named driver.
func Open(name string, index int) (Driver, error) {
	registryMu.Lock()
	open, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (registered: %v)", name, Drivers())
	}
	return open(index)
}
