// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package autocirculate

import (
	"context"

	"github.com/pkg/errors"

	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/timecode"
)

// TransferRequest is one frame's worth of host buffers. It is either a
// *CaptureTransfer or a *PlaybackTransfer.
type TransferRequest interface {
	isInput() bool
	status() *driver.TransferStatus
}

// CaptureTransfer receives one captured frame. Nil buffers are not
// transferred.
type CaptureTransfer struct {
	Video []byte
	Audio []byte
	AncF1 []byte
	AncF2 []byte

	// Status is filled in by Transfer. Captured timecodes are in
	// Status.FrameStamp.Timecodes.
	Status driver.TransferStatus
}

func (t *CaptureTransfer) isInput() bool                  { return true }
func (t *CaptureTransfer) status() *driver.TransferStatus { return &t.Status }

// Timecode returns a captured timecode.
func (t *CaptureTransfer) Timecode(idx timecode.Index) timecode.RP188 {
	return t.Status.FrameStamp.Timecode(idx)
}

// PlaybackTransfer sends one frame for playout.
type PlaybackTransfer struct {
	Video []byte
	Audio []byte
	AncF1 []byte
	AncF2 []byte

	// Timecode, when valid, is written to every output timecode slot.
	Timecode timecode.RP188
	// Timecodes are the per-output timecodes. A valid default slot is
	// copied to every other slot.
	Timecodes timecode.Timecodes

	Status driver.TransferStatus
}

// NewPlaybackTransfer returns a playback request with no timecodes.
func NewPlaybackTransfer() *PlaybackTransfer {
	return &PlaybackTransfer{
		Timecode:  timecode.InvalidRP188,
		Timecodes: timecode.NewTimecodes(),
	}
}

func (t *PlaybackTransfer) isInput() bool                  { return false }
func (t *PlaybackTransfer) status() *driver.TransferStatus { return &t.Status }

const tempAncBytes = 2048

// Transfer moves one frame between req's buffers and the ring of ch.
// It does not retry; a caller that gets an error tries again on the
// next frame.
func (c *Card) Transfer(ctx context.Context, ch driver.Channel, req TransferRequest) error {
	if req == nil {
		return errors.Wrap(ErrConfig, "nil transfer request")
	}
	x, err := c.crosspoint(ch)
	if err != nil {
		return err
	}
	if x.IsInput() != req.isInput() {
		return errors.Wrapf(ErrConfig, "%T on %s", req, x)
	}

	xfer := driver.NewTransfer(x)
	switch r := req.(type) {
	case *CaptureTransfer:
		xfer.Video, xfer.Audio = r.Video, r.Audio
		xfer.AncF1, xfer.AncF2 = r.AncF1, r.AncF2
		xfer.Status.FrameStamp.Timecodes.Invalidate()
		if c.info.Is2110 {
			if xfer.AncF1 == nil {
				xfer.AncF1 = make([]byte, tempAncBytes)
			}
			if xfer.AncF2 == nil {
				xfer.AncF2 = make([]byte, tempAncBytes)
			}
		}
	case *PlaybackTransfer:
		xfer.Video, xfer.Audio = r.Video, r.Audio
		xfer.AncF1, xfer.AncF2 = r.AncF1, r.AncF2
		c.prepareOutputTimecodes(ch, r)
		xfer.OutputTimecodes = r.Timecodes
		if c.info.Is2110 {
			f1, f2, err := c.injectAnc(ch, r.Timecodes, r.AncF1, r.AncF2)
			if err != nil {
				c.logf("%s: anc timecode injection failed: %v", x, err)
			} else {
				xfer.AncF1, xfer.AncF2 = f1, f2
			}
		}
	default:
		return errors.Wrapf(ErrConfig, "unsupported transfer request %T", req)
	}

	if err := c.drv.Message(ctx, xfer); err != nil {
		return driverErr("transfer "+x.String(), err)
	}
	st := req.status()
	*st = xfer.Status

	if r, ok := req.(*CaptureTransfer); ok {
		if c.info.Is2110 {
			c.decodeCapturedAnc(ch, st, xfer.AncF1, xfer.AncF2)
		} else if c.classicTC && c.taskMode() == driver.TaskModeStandard {
			c.selectClassicTimecode(&st.FrameStamp.Timecodes)
		}
		if err := c.zeroAnc(ctx, x, st, r.AncF1, r.AncF2); err != nil {
			return err
		}
	}
	return nil
}

// prepareOutputTimecodes propagates a caller's single timecode into
// every output slot. Field 2 slots are set for interlaced standards
// only.
func (c *Card) prepareOutputTimecodes(ch driver.Channel, r *PlaybackTransfer) {
	std, err := driver.ReadStandard(c.drv, ch)
	alsoF2 := err == nil && !std.Progressive()
	if r.Timecode.Valid() {
		r.Timecodes.SetAll(r.Timecode, alsoF2)
	}
	if def := r.Timecodes[timecode.IndexDefault]; def.Valid() {
		r.Timecodes.SetAll(def, alsoF2)
	}
}

// selectClassicTimecode copies the timecode chosen by the input and
// RP188 source selections into the default slot.
func (c *Card) selectClassicTimecode(tcs *timecode.Timecodes) {
	sdi2 := driver.InputSelect(c.readVirtual(driver.VRegInputSelect)) == driver.InputSelect2
	var idx timecode.Index
	switch driver.RP188Source(c.readVirtual(driver.VRegRP188SourceSelect)) {
	case driver.RP188SourceVITC1:
		idx = pickIndex(sdi2, timecode.IndexSDI1, timecode.IndexSDI2)
	case driver.RP188SourceVITC2:
		idx = pickIndex(sdi2, timecode.IndexSDI1_2, timecode.IndexSDI2_2)
	case driver.RP188SourceLTCPort:
		idx = timecode.IndexLTC1
	default:
		// Embedded LTC, also used for unknown selections.
		idx = pickIndex(sdi2, timecode.IndexSDI1LTC, timecode.IndexSDI2LTC)
	}

	tc := tcs[idx]
	if idx == timecode.IndexLTC1 && ltcPresent(tc) {
		tc.DBB |= timecode.LTCReceivedBit
		tcs[idx] = tc
	}
	tcs[timecode.IndexDefault] = tc
}

func pickIndex(second bool, first, other timecode.Index) timecode.Index {
	if second {
		return other
	}
	return first
}

// ltcPresent reports whether an analog LTC value holds a real reading
// rather than the all-zero or all-one patterns of a missing signal.
func ltcPresent(tc timecode.RP188) bool {
	return tc.Low != 0 && tc.High != 0 && tc.Low != 0xFFFFFFFF && tc.High != 0xFFFFFFFF
}

// zeroAnc clears anc data left behind by a capture when the zeroing
// virtual registers ask for it.
func (c *Card) zeroAnc(ctx context.Context, x driver.Crosspoint, st *driver.TransferStatus, f1, f2 []byte) error {
	if c.readVirtual(driver.VRegZeroHostAncPostCapture) != 0 {
		zeroTail(f1, st.AncByteCountF1)
		zeroTail(f2, st.AncByteCountF2)
	}
	if c.readVirtual(driver.VRegZeroDeviceAncPostCapture) == 0 {
		return nil
	}
	size := c.readVirtual(driver.VRegAncField1Offset)
	if off2 := c.readVirtual(driver.VRegAncField2Offset); off2 > size {
		size = off2
	}
	if size == 0 || size > c.info.FrameBufferBytes {
		return nil
	}
	err := c.drv.DMATransfer(ctx, driver.DMARequest{
		ToDevice: true,
		Frame:    uint32(st.TransferFrame),
		Offset:   c.info.FrameBufferBytes - size,
		Buffer:   make([]byte, size),
	})
	if err != nil {
		c.logf("%s: failed to zero device anc of frame %d: %v", x, st.TransferFrame, err)
		return driverErr("zero anc "+x.String(), err)
	}
	return nil
}

func zeroTail(b []byte, n uint32) {
	if uint64(n) >= uint64(len(b)) {
		return
	}
	tail := b[n:]
	for i := range tail {
		tail[i] = 0
	}
}
