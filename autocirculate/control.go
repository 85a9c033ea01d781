// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package autocirculate

import (
	"context"

	"github.com/pkg/errors"

	"github.com/TheCacophonyProject/autocirculate/driver"
)

const (
	maxAudioChannels = 8
	audioBufferBytes = 4 * 1024 * 1024
)

// InitParams describes the frames, audio and options a channel is
// initialized with.
type InitParams struct {
	// FrameCount frames are allocated when Range is zero.
	FrameCount int
	// Range, when not zero, is used as is and FrameCount is ignored.
	Range       FrameRange
	AudioSystem driver.AudioSystem
	Options     driver.Options
	// NumChannels is the number of channels; 0 means 1.
	NumChannels int
}

// InitForInput prepares channel ch for capture and returns the frames
// it was given.
func (c *Card) InitForInput(ctx context.Context, ch driver.Channel, p InitParams) (FrameRange, error) {
	return c.initChannel(ctx, driver.InputCrosspoint(ch), ch, p)
}

// InitForOutput prepares channel ch for playout and returns the frames
// it was given.
func (c *Card) InitForOutput(ctx context.Context, ch driver.Channel, p InitParams) (FrameRange, error) {
	return c.initChannel(ctx, driver.OutputCrosspoint(ch), ch, p)
}

func (c *Card) initChannel(ctx context.Context, x driver.Crosspoint, ch driver.Channel, p InitParams) (FrameRange, error) {
	if err := c.checkChannel(ch); err != nil {
		c.logf("%s is illegal channel value", ch)
		return FrameRange{}, err
	}
	if p.NumChannels == 0 {
		p.NumChannels = 1
	}
	if p.NumChannels < 0 || p.NumChannels > maxAudioChannels {
		c.logf("%s: illegal channel count %d, must be 1-8", x, p.NumChannels)
		return FrameRange{}, errors.Wrapf(ErrConfig, "channel count %d", p.NumChannels)
	}

	unlock, err := c.lockAllocation()
	if err != nil {
		return FrameRange{}, err
	}
	defer unlock()

	r, err := c.chooseRange(ctx, x, p)
	if err != nil {
		return FrameRange{}, err
	}

	multiLink := driver.WithMultiLinkAudio1 | driver.WithMultiLinkAudio2 | driver.WithMultiLinkAudio3
	if p.Options&multiLink != 0 && !c.info.CanMultiLinkAudio {
		c.logf("%s: multi-link audio requested, but device doesn't support it", x)
	}
	if p.AudioSystem.Valid() && uint32(p.AudioSystem.Base()) >= c.info.NumAudioSystems {
		c.logf("invalid audio system %s, device has %d", p.AudioSystem, c.info.NumAudioSystems)
		return FrameRange{}, errors.Wrapf(ErrConfig, "audio system %s", p.AudioSystem)
	}

	data := initData(x, r, p)
	if x.IsOutput() && c.info.Is2110 && p.Options.Has(driver.WithRP188) && !p.Options.Has(driver.WithAnc) {
		data.BVal7 = true
		c.logf("%s: RP188 requested without Anc, enabled Anc anyway", x)
	}
	if err := c.command(ctx, data); err != nil {
		c.logf("%s initialization failed: %v", x, err)
		return FrameRange{}, err
	}

	c.warnInterference(x, r)
	c.warnAudioCapacity(ctx, x)
	c.logf("%s initialized using frames %s", x, r)
	return r, nil
}

// chooseRange validates an explicit range or allocates one. The
// allocation lock must be held.
func (c *Card) chooseRange(ctx context.Context, x driver.Crosspoint, p InitParams) (FrameRange, error) {
	r := p.Range
	if r.IsZero() {
		if p.FrameCount == 0 {
			c.logf("%s: zero frames requested", x)
			return r, errors.Wrap(ErrConfig, "zero frames requested")
		}
		if p.FrameCount < 2 {
			c.logf("%s: %d frames requested, need at least 2", x, p.FrameCount)
			return r, errors.Wrapf(ErrConfig, "%d frames, need at least 2", p.FrameCount)
		}
		return c.findUnallocatedFrames(ctx, p.FrameCount)
	}

	if p.FrameCount != 0 {
		c.logf("%s: frame count %d ignored, using frames %s", x, p.FrameCount, r)
	}
	if r.End < r.Start {
		c.logf("%s: end frame %d precedes start frame %d", x, r.End, r.Start)
		return r, errors.Wrapf(ErrConfig, "end frame %d precedes start frame %d", r.End, r.Start)
	}
	if r.Count() < 2 {
		c.logf("%s: frames %s are fewer than 2", x, r)
		return r, errors.Wrapf(ErrConfig, "frames %s are fewer than 2", r)
	}
	limit := int32(c.info.NumFrameBuffers)
	if r.Start < 0 || r.Start >= limit || r.End >= limit {
		c.logf("%s: frames %s exceed max frame %d", x, r, limit-1)
		return r, errors.Wrapf(ErrRange, "frames %s exceed max frame %d", r, limit-1)
	}

	claims, err := c.claimedRanges(ctx)
	if err != nil {
		return r, err
	}
	for _, cl := range claims {
		if cl.xpt == x || !cl.Overlaps(r) {
			continue
		}
		c.logf("%s: frames %s overlap %s using frames %s", x, r, cl.xpt, cl.FrameRange)
		if c.overlap == OverlapReject {
			return r, errors.Wrapf(ErrAllocation, "frames %s in use by %s", r, cl.xpt)
		}
	}
	return r, nil
}

func initData(x driver.Crosspoint, r FrameRange, p InitParams) *driver.ACData {
	audio := p.AudioSystem
	if p.Options.Has(driver.WithMultiLinkAudio1) {
		audio |= driver.AudioSystemPlus1
	}
	if p.Options.Has(driver.WithMultiLinkAudio2) {
		audio |= driver.AudioSystemPlus2
	}
	if p.Options.Has(driver.WithMultiLinkAudio3) {
		audio |= driver.AudioSystemPlus3
	}
	return &driver.ACData{
		Command:    driver.CmdInit,
		Crosspoint: x,
		LVal1:      r.Start,
		LVal2:      r.End,
		LVal3:      int32(audio),
		LVal4:      int32(p.NumChannels),
		LVal6:      int32(p.Options & (driver.WithFields | driver.WithHDMIAux)),
		BVal1:      !p.Options.Has(driver.WithAudioControl) && p.AudioSystem.Valid(),
		BVal2:      p.Options.Has(driver.WithRP188),
		BVal3:      p.Options.Has(driver.WithFBFChange),
		BVal4:      p.Options.Has(driver.WithFBOChange),
		BVal5:      p.Options.Has(driver.WithColorCorrect),
		BVal6:      p.Options.Has(driver.WithVidProc),
		BVal7:      p.Options.Has(driver.WithAnc),
		BVal8:      p.Options.Has(driver.WithLTC),
	}
}

// warnAudioCapacity logs when the channel's frames hold more audio than
// the audio system's buffer.
func (c *Card) warnAudioCapacity(ctx context.Context, x driver.Crosspoint) {
	st := driver.NewStatus(x)
	if err := c.drv.Message(ctx, st); err != nil || st.IsStopped() || !st.WithAudio() {
		return
	}
	rate, err := driver.ReadFrameRate(c.drv, x.Channel())
	if err != nil || !rate.Valid() || c.info.AudioSampleRate == 0 || c.info.AudioChannels == 0 {
		return
	}
	bytesPerFrame := float64(c.info.AudioSampleRate) * 4 * float64(c.info.AudioChannels) / rate.FPS()
	maxFrames := uint32(audioBufferBytes / uint32(bytesPerFrame))
	if st.FrameCount() > maxFrames {
		c.logf("%s: %d frames (%d-%d) exceed %d-frame max buffer capacity of %s",
			x, st.FrameCount(), st.StartFrame, st.EndFrame, maxFrames, st.AudioSystem.Base())
	}
}

// Start starts circulating frames on ch.
func (c *Card) Start(ctx context.Context, ch driver.Channel) error {
	return c.StartAt(ctx, ch, 0)
}

// StartAt starts circulating frames on ch once the driver clock reaches
// startTime. A zero startTime starts at the next vertical interrupt.
func (c *Card) StartAt(ctx context.Context, ch driver.Channel, startTime uint64) error {
	x, err := c.crosspoint(ch)
	if err != nil {
		return err
	}
	data := &driver.ACData{Command: driver.CmdStart, Crosspoint: x}
	if startTime != 0 {
		data.Command = driver.CmdStartAtTime
		data.LVal1 = int32(startTime >> 32)
		data.LVal2 = int32(startTime & 0xFFFFFFFF)
	}
	if err := c.command(ctx, data); err != nil {
		c.logf("failed to start %s: %v", ch, err)
		return err
	}
	c.logf("started %s", ch)
	return nil
}

// Stop stops ch and waits one vertical interrupt for the driver to
// disable it. A channel that is still not disabled is aborted.
func (c *Card) Stop(ctx context.Context, ch driver.Channel) error {
	if err := c.requestStop(ctx, ch, driver.CmdStop); err != nil {
		return err
	}

	x, err := c.crosspoint(ch)
	if err != nil {
		return err
	}
	if err := c.drv.WaitForInterrupt(ctx, driver.VerticalFor(x), c.stopWait); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logf("%s: no vertical interrupt while stopping: %v", ch, err)
	}

	st, err := c.Status(ctx, ch)
	if err != nil {
		return err
	}
	if !st.IsStopped() {
		c.logf("failed to stop %s, %s, retrying with abort", ch, st.State)
		return c.Abort(ctx, ch)
	}
	c.logf("stopped %s", ch)
	return nil
}

// Abort disables ch immediately. Frames in flight are lost.
func (c *Card) Abort(ctx context.Context, ch driver.Channel) error {
	if err := c.requestStop(ctx, ch, driver.CmdAbort); err != nil {
		return err
	}
	c.logf("aborted %s", ch)
	return nil
}

// requestStop sends cmd to both crosspoints of ch. It only fails when
// both are rejected.
func (c *Card) requestStop(ctx context.Context, ch driver.Channel, cmd driver.Command) error {
	if err := c.checkChannel(ch); err != nil {
		return err
	}
	inErr := c.command(ctx, &driver.ACData{Command: cmd, Crosspoint: driver.InputCrosspoint(ch)})
	outErr := c.command(ctx, &driver.ACData{Command: cmd, Crosspoint: driver.OutputCrosspoint(ch)})
	if inErr != nil && outErr != nil {
		c.logf("failed to stop %s: %v", ch, outErr)
		return outErr
	}
	return nil
}

// StopChannels stops each channel, or aborts them if abort is set. It
// returns the first error after trying every channel.
func (c *Card) StopChannels(ctx context.Context, channels []driver.Channel, abort bool) error {
	var first error
	failures := 0
	for _, ch := range channels {
		var err error
		if abort {
			err = c.Abort(ctx, ch)
		} else {
			err = c.Stop(ctx, ch)
		}
		if err != nil {
			failures++
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return errors.Wrapf(first, "%d of %d channels failed to stop", failures, len(channels))
	}
	return nil
}

// Pause holds the active frame of ch.
func (c *Card) Pause(ctx context.Context, ch driver.Channel) error {
	return c.simpleCommand(ctx, ch, &driver.ACData{Command: driver.CmdPause}, "pause")
}

// Resume continues a paused channel, optionally clearing its drop count.
func (c *Card) Resume(ctx context.Context, ch driver.Channel, clearDropCount bool) error {
	return c.simpleCommand(ctx, ch, &driver.ACData{Command: driver.CmdPause, BVal1: true, BVal2: clearDropCount}, "resume")
}

// Flush discards frames waiting to be transferred without stopping.
func (c *Card) Flush(ctx context.Context, ch driver.Channel, clearDropCount bool) error {
	return c.simpleCommand(ctx, ch, &driver.ACData{Command: driver.CmdFlush, BVal1: clearDropCount}, "flush")
}

// PreRoll marks frames extra playout frames of ch as ready.
func (c *Card) PreRoll(ctx context.Context, ch driver.Channel, frames uint32) error {
	return c.simpleCommand(ctx, ch, &driver.ACData{Command: driver.CmdPreroll, LVal1: int32(frames)}, "preroll")
}

// SetActiveFrame moves the driver's active frame of ch.
func (c *Card) SetActiveFrame(ctx context.Context, ch driver.Channel, frame uint32) error {
	return c.simpleCommand(ctx, ch, &driver.ACData{Command: driver.CmdSetActiveFrame, LVal1: int32(frame)}, "set active frame on")
}

func (c *Card) simpleCommand(ctx context.Context, ch driver.Channel, data *driver.ACData, verb string) error {
	x, err := c.crosspoint(ch)
	if err != nil {
		return err
	}
	data.Crosspoint = x
	if err := c.command(ctx, data); err != nil {
		c.logf("failed to %s %s: %v", verb, ch, err)
		return err
	}
	c.logf("%s %s done", verb, ch)
	return nil
}
