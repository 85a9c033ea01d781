// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package sim

import (
	"context"
	"fmt"

	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/timecode"
)

// Message implements driver.Driver.
func (d *Device) Message(ctx context.Context, msg driver.Message) error {
	if err := driver.ValidateMessage(msg); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrClosed
	}
	if err := d.failMsg[msg.Type()]; err != nil {
		return err
	}

	switch m := msg.(type) {
	case *driver.Status:
		return d.status(m)
	case *driver.FrameStamp:
		return d.frameStamp(m)
	case *driver.Transfer:
		return d.transfer(m)
	}
	return fmt.Errorf("unsupported message %s", msg.Type())
}

func (d *Device) status(s *driver.Status) error {
	c, ok := d.xpts[s.Crosspoint]
	if !ok {
		return fmt.Errorf("status: bad crosspoint %d", s.Crosspoint)
	}
	now := d.now()
	s.State = c.state
	s.StartFrame, s.EndFrame, s.ActiveFrame = c.start, c.end, c.active
	if !c.startTime.IsZero() {
		s.RDTSCStartTime = uint64(c.startTime.UnixNano())
	}
	s.RDTSCCurrentTime = uint64(now.UnixNano())
	s.FramesProcessed = c.processed
	s.FramesDropped = c.dropped
	s.BufferLevel = c.bufferLevel()
	s.Options = c.options
	s.AudioSystem = c.audioSystem
	s.NumAudioChannels = c.numChannels
	return nil
}

func (d *Device) frameStamp(fs *driver.FrameStamp) error {
	if !fs.Channel.Valid() {
		return fmt.Errorf("frame stamp: bad channel %d", fs.Channel)
	}
	x := driver.OutputCrosspoint(fs.Channel)
	if driver.Mode(d.readRegister(driver.ChannelControl(fs.Channel), driver.MaskMode, driver.ShiftMode)) == driver.ModeCapture {
		x = driver.InputCrosspoint(fs.Channel)
	}
	c := d.xpts[x]
	if c.ring == nil || !c.ring.contains(int32(fs.RequestedFrame)) {
		return fmt.Errorf("frame stamp: frame %d outside %s range", fs.RequestedFrame, x)
	}

	requested := fs.RequestedFrame
	if stamp, ok := c.stamps[int32(requested)]; ok {
		*fs = stamp
	} else {
		*fs = *driver.NewFrameStamp(fs.Channel, requested)
	}
	now := d.now()
	fs.CurrentTime = now.UnixNano()
	fs.CurrentFrame = uint32(c.active)
	fs.CurrentFieldCount = d.fields
	if cur, ok := c.stamps[c.active]; ok {
		fs.CurrentFrameTime = cur.FrameTime
	}
	return nil
}

func (d *Device) transfer(t *driver.Transfer) error {
	c, ok := d.xpts[t.Crosspoint]
	if !ok {
		return fmt.Errorf("transfer: bad crosspoint %d", t.Crosspoint)
	}
	if c.state != driver.StateRunning && c.state != driver.StatePaused {
		return fmt.Errorf("transfer: %s is %s", c.xpt, c.state)
	}
	f1Off, f1Size, f2Off, f2Size := d.ancRegion()
	videoSize := d.info.FrameBufferBytes
	if f1Size > 0 {
		videoSize = f1Off
	}

	var frame int32
	st := &t.Status
	if c.xpt.IsInput() {
		if c.ring.empty() {
			return fmt.Errorf("transfer: no captured frame on %s", c.xpt)
		}
		frame = c.ring.pop()
		mem := d.memory[frame]
		st.VideoByteCount = uint32(copy(t.Video, mem[:videoSize]))
		counts := c.ancBytes[frame]
		st.AncByteCountF1, st.AncByteCountF2 = 0, 0
		if t.AncF1 != nil && f1Size > 0 {
			st.AncByteCountF1 = uint32(copy(t.AncF1, mem[f1Off:f1Off+counts[0]]))
		}
		if t.AncF2 != nil && f2Size > 0 {
			st.AncByteCountF2 = uint32(copy(t.AncF2, mem[f2Off:f2Off+counts[1]]))
		}
		st.AudioBufferSize = d.fillAudio(c, t.Audio, c.stamps[frame].Frame)
		// Only the slots the frame carried are written.
		tcs := st.FrameStamp.Timecodes
		st.FrameStamp = c.stamps[frame]
		for i, tc := range st.FrameStamp.Timecodes {
			if tc.Valid() {
				tcs[i] = tc
			}
		}
		st.FrameStamp.Timecodes = tcs
	} else {
		if c.ring.full() {
			return fmt.Errorf("transfer: no free frame on %s", c.xpt)
		}
		frame = c.ring.push()
		mem := d.memory[frame]
		st.VideoByteCount = uint32(copy(mem[:videoSize], t.Video))
		if f1Size > 0 {
			st.AncByteCountF1 = uint32(copy(mem[f1Off:f1Off+f1Size], t.AncF1))
			st.AncByteCountF2 = uint32(copy(mem[f2Off:f2Off+f2Size], t.AncF2))
		}
		st.AudioBufferSize = uint32(len(t.Audio))
		c.outputTCs[frame] = t.OutputTimecodes

		fs := driver.NewFrameStamp(c.xpt.Channel(), uint32(frame))
		fs.FrameTime = d.now().UnixNano()
		fs.Frame = c.sequence
		fs.Timecodes = t.OutputTimecodes
		c.sequence++
		c.stamps[frame] = *fs
		st.FrameStamp = *fs
	}

	st.State = c.state
	st.TransferFrame = frame
	st.BufferLevel = c.bufferLevel()
	st.FramesProcessed = c.processed
	st.FramesDropped = c.dropped
	return nil
}

// fillAudio writes one frame's worth of samples tagged with seq.
func (d *Device) fillAudio(c *acChannel, buf []byte, seq uint32) uint32 {
	if buf == nil || !c.audioSystem.Valid() {
		return 0
	}
	n := int(d.info.AudioSampleRate/30) * 4 * int(c.numChannels)
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		buf[i] = byte(seq)
	}
	return uint32(n)
}

// OutputTimecodes returns the timecodes last written for device frame
// n of crosspoint x.
func (d *Device) OutputTimecodes(x driver.Crosspoint, frame int32) (timecode.Timecodes, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.xpts[x]
	if !ok || c.outputTCs == nil {
		return timecode.NewTimecodes(), false
	}
	tcs, ok := c.outputTCs[frame]
	return tcs, ok
}
