// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/autocirculate/anc"
	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/timecode"
)

// acChannel is the driver-side AutoCirculate state of one crosspoint.
type acChannel struct {
	xpt         driver.Crosspoint
	state       driver.State
	start, end  int32
	active      int32
	audioSystem driver.AudioSystem
	numChannels uint32
	options     driver.Options
	processed   uint32
	dropped     uint32
	sequence    uint32
	startAt     int64
	startTime   time.Time
	ring        *frameLoop
	stamps      map[int32]driver.FrameStamp
	ancBytes    map[int32][2]uint32
	outputTCs   map[int32]timecode.Timecodes
}

func (c *acChannel) reset() {
	*c = acChannel{xpt: c.xpt, state: driver.StateDisabled, audioSystem: driver.AudioSystemInvalid}
}

func (c *acChannel) bufferLevel() uint32 {
	if c.ring == nil {
		return 0
	}
	level := uint32(c.ring.level)
	if c.xpt.IsInput() && c.state == driver.StateRunning {
		// The frame being captured counts too.
		level++
	}
	return level
}

// AutoCirculate implements driver.Driver.
func (d *Device) AutoCirculate(ctx context.Context, data *driver.ACData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrClosed
	}
	d.commands = append(d.commands, *data)
	if err := d.failCmd[data.Command]; err != nil {
		return err
	}
	c, ok := d.xpts[data.Crosspoint]
	if !ok {
		return fmt.Errorf("%s: bad crosspoint %d", data.Command, data.Crosspoint)
	}

	switch data.Command {
	case driver.CmdInit:
		return d.initChannel(c, data)
	case driver.CmdStart:
		if c.state != driver.StateInitializing {
			return fmt.Errorf("%s: %s is %s", data.Command, c.xpt, c.state)
		}
		c.state = driver.StateStarting
	case driver.CmdStartAtTime:
		if c.state != driver.StateInitializing {
			return fmt.Errorf("%s: %s is %s", data.Command, c.xpt, c.state)
		}
		c.startAt = int64(data.LVal1)<<32 | int64(uint32(data.LVal2))
		c.state = driver.StateStartingAtTime
	case driver.CmdStop:
		if c.state != driver.StateDisabled {
			c.state = driver.StateStopping
		}
	case driver.CmdAbort:
		c.reset()
	case driver.CmdPause:
		if data.BVal2 {
			c.dropped = 0
		}
		if data.BVal1 {
			if c.state == driver.StatePaused {
				c.state = driver.StateRunning
			}
		} else if c.state == driver.StateRunning {
			c.state = driver.StatePaused
		}
	case driver.CmdFlush:
		if c.ring != nil {
			c.ring.flush()
		}
		if data.BVal1 {
			c.dropped = 0
		}
	case driver.CmdPreroll:
		if c.ring == nil || c.xpt.IsInput() {
			return fmt.Errorf("%s: %s cannot preroll", data.Command, c.xpt)
		}
		c.ring.preroll(data.LVal1)
	case driver.CmdSetActiveFrame:
		if c.ring == nil || !c.ring.contains(data.LVal1) {
			return fmt.Errorf("%s: frame %d outside %s range", data.Command, data.LVal1, c.xpt)
		}
		d.setActive(c, data.LVal1)
	default:
		return fmt.Errorf("unsupported command %s", data.Command)
	}
	return nil
}

func (d *Device) initChannel(c *acChannel, data *driver.ACData) error {
	if c.state != driver.StateDisabled {
		return fmt.Errorf("%s: %s is %s", data.Command, c.xpt, c.state)
	}
	start, end := data.LVal1, data.LVal2
	if start < 0 || end <= start || uint32(end) >= d.info.NumFrameBuffers {
		return fmt.Errorf("%s: bad frame range %d-%d", data.Command, start, end)
	}

	c.reset()
	c.state = driver.StateInitializing
	c.start, c.end = start, end
	d.writeRegister(driver.ChannelControl(c.xpt.Channel()), 0, driver.MaskFrameStoreDisable, driver.ShiftFrameStoreDisable)
	d.setActive(c, start)
	c.audioSystem = driver.AudioSystem(data.LVal3)
	c.numChannels = uint32(data.LVal4)
	c.options = driver.Options(data.LVal6)
	if c.audioSystem.Valid() && !data.BVal1 {
		c.options |= driver.WithAudioControl
	}
	flags := []struct {
		set bool
		opt driver.Options
	}{
		{data.BVal2, driver.WithRP188},
		{data.BVal3, driver.WithFBFChange},
		{data.BVal4, driver.WithFBOChange},
		{data.BVal5, driver.WithColorCorrect},
		{data.BVal6, driver.WithVidProc},
		{data.BVal7, driver.WithAnc},
		{data.BVal8, driver.WithLTC},
	}
	for _, f := range flags {
		if f.set {
			c.options |= f.opt
		}
	}
	c.ring = newFrameLoop(start, end)
	c.stamps = make(map[int32]driver.FrameStamp)
	c.ancBytes = make(map[int32][2]uint32)
	c.outputTCs = make(map[int32]timecode.Timecodes)
	return nil
}

// advance moves crosspoint c through one vertical interrupt.
func (d *Device) advance(c *acChannel, now time.Time) {
	switch c.state {
	case driver.StateStartingAtTime:
		if now.UnixNano() >= c.startAt {
			c.state = driver.StateRunning
			c.startTime = now
		}
	case driver.StateStarting:
		c.state = driver.StateRunning
		c.startTime = now
	case driver.StateStopping:
		if !d.stuck[c.xpt] {
			c.reset()
		}
	case driver.StateRunning:
		if c.xpt.IsInput() {
			if c.ring.full() {
				c.dropped++
				return
			}
			frame := c.ring.push()
			d.setActive(c, frame)
			d.capture(c, frame, now)
			c.processed++
			return
		}
		if c.ring.empty() {
			c.dropped++
			return
		}
		d.setActive(c, c.ring.pop())
		c.processed++
	}
}

// setActive moves the active frame of c and points the channel's frame
// store at it.
func (d *Device) setActive(c *acChannel, frame int32) {
	c.active = frame
	reg := driver.OutputFrame(c.xpt.Channel())
	if c.xpt.IsInput() {
		reg = driver.InputFrame(c.xpt.Channel())
	}
	d.writeRegister(reg, uint32(frame), driver.MaskAll, 0)
}

// capture fills device frame with a synthetic picture, anc and stamp.
func (d *Device) capture(c *acChannel, frame int32, now time.Time) {
	seq := c.sequence
	c.sequence++
	ch := c.xpt.Channel()

	mem := d.memory[frame]
	for i := range mem {
		mem[i] = byte(seq)
	}

	rate := timecode.FrameRate(d.readRegister(driver.GlobalControl(ch), driver.MaskFrameRate, driver.ShiftFrameRate))
	std := driver.Standard(d.readRegister(driver.GlobalControl(ch), driver.MaskStandard, driver.ShiftStandard))
	tc := timecode.FromTimecode(timecode.Timecode{Frame: seq}, rate, timecode.DropFrameAllowed(rate))

	fs := driver.NewFrameStamp(ch, uint32(frame))
	fs.FrameTime = now.UnixNano()
	fs.Frame = seq
	fs.AudioClockTimeStamp = uint64(now.Sub(c.startTime) / time.Microsecond)

	var n1, n2 int
	f1Off, f1Size, f2Off, f2Size := d.ancRegion()
	if d.info.Is2110 {
		// IP devices deliver timecode and VPID as anc packets only.
		l := new(anc.List)
		if p, err := anc.NewATC(tc, rate, anc.ATCVITC1, std.VPIDLine(false)); err == nil {
			l.Add(p)
		}
		l.Add(anc.NewVPID(defaultVPID, std.VPIDLine(false)))
		if f1Size > 0 {
			var f2Start uint16
			if !std.Progressive() {
				f2Start = std.F2StartLine()
			}
			n1, n2, _ = l.WriteRTP(mem[f1Off:f1Off+f1Size], mem[f2Off:f2Off+f2Size], f2Start,
				anc.RTPOptions{SequenceNumber: uint16(seq * 2), Timestamp: seq})
		}
	} else {
		for _, idx := range timecode.SDIIndexes(int(ch)) {
			fs.Timecodes[idx] = tc
		}
		if ch == driver.Channel1 {
			fs.Timecodes[timecode.IndexLTC1] = tc
		}
		if f1Size > 0 {
			zeroBytes(mem[f1Off : f1Off+f1Size])
			zeroBytes(mem[f2Off : f2Off+f2Size])
		}
	}
	c.ancBytes[frame] = [2]uint32{uint32(n1), uint32(n2)}
	c.stamps[frame] = *fs
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
