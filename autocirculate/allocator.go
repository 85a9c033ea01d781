// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package autocirculate

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/TheCacophonyProject/autocirculate/driver"
)

// FrameRange is an inclusive band of device frame buffer indexes.
type FrameRange struct {
	Start int32
	End   int32
}

// IsZero reports whether r is the zero range, which asks Init to
// allocate frames.
func (r FrameRange) IsZero() bool {
	return r.Start == 0 && r.End == 0
}

// Count returns the number of frames in r.
func (r FrameRange) Count() int32 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Overlaps reports whether r and o share a frame.
func (r FrameRange) Overlaps(o FrameRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func (r FrameRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

type claim struct {
	xpt driver.Crosspoint
	FrameRange
}

// claimedRanges returns the frames held by every crosspoint that is not
// stopped. Quad-frame channels 1 and 5 hold four frame buffers per
// frame.
func (c *Card) claimedRanges(ctx context.Context) ([]claim, error) {
	quad1, err := driver.ReadQuadMode(c.drv, driver.Channel1)
	if err != nil {
		return nil, driverErr("read quad mode", err)
	}
	quad5, err := driver.ReadQuadMode(c.drv, driver.Channel5)
	if err != nil {
		return nil, driverErr("read quad mode", err)
	}

	var claims []claim
	for _, x := range driver.AllCrosspoints() {
		if uint32(x.Channel()) >= c.info.NumChannels {
			continue
		}
		st := driver.NewStatus(x)
		if err := c.drv.Message(ctx, st); err != nil {
			return nil, driverErr("status "+x.String(), err)
		}
		if st.IsStopped() {
			continue
		}
		r := FrameRange{Start: st.StartFrame, End: st.EndFrame}
		switch ch := x.Channel(); {
		case ch == driver.Channel1 && quad1, ch == driver.Channel5 && quad5:
			r.End = r.Start + r.Count()*4 - 1
		}
		claims = append(claims, claim{xpt: x, FrameRange: r})
	}
	return claims, nil
}

// warnInterference logs every enabled frame store of another channel
// that is reading or writing a frame inside r. The channel keeps r.
func (c *Card) warnInterference(x driver.Crosspoint, r FrameRange) {
	for ch := driver.Channel1; uint32(ch) < c.info.NumChannels && ch.Valid(); ch++ {
		if ch == x.Channel() {
			continue
		}
		enabled, err := driver.ReadFrameStoreEnabled(c.drv, ch)
		if err != nil || !enabled {
			continue
		}
		frame, err := driver.ReadFrameStoreFrame(c.drv, ch)
		if err != nil || frame > uint32(r.End) || int64(frame) < int64(r.Start) {
			continue
		}
		c.logf("%s: frames %s: interference from %s frame store at frame %03d", x, r, ch, frame)
	}
}

// firstFit returns the lowest band of count frames below total that
// overlaps none of the claimed ranges.
func firstFit(claimed []FrameRange, count, total int32) (FrameRange, bool) {
	if count <= 0 {
		return FrameRange{}, false
	}
	sorted := append([]FrameRange(nil), claimed...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	start := int32(0)
	for _, r := range sorted {
		if r.End < start {
			continue
		}
		if r.Start > start+count-1 {
			break
		}
		start = r.End + 1
	}
	if start+count > total {
		return FrameRange{}, false
	}
	return FrameRange{Start: start, End: start + count - 1}, true
}

// FindUnallocatedFrames returns the first band of count contiguous
// frames not claimed by any running crosspoint. It takes the allocation
// lock itself; Init calls the unlocked variant.
func (c *Card) FindUnallocatedFrames(ctx context.Context, count int) (FrameRange, error) {
	if err := c.checkOpen(); err != nil {
		return FrameRange{}, err
	}
	unlock, err := c.lockAllocation()
	if err != nil {
		return FrameRange{}, err
	}
	defer unlock()
	return c.findUnallocatedFrames(ctx, count)
}

func (c *Card) findUnallocatedFrames(ctx context.Context, count int) (FrameRange, error) {
	if count <= 0 {
		return FrameRange{}, errors.Wrap(ErrAllocation, "must request at least one frame")
	}
	if uint64(count) > uint64(c.info.NumFrameBuffers) {
		c.logf("cannot find %d contiguous frames in %d frame buffers", count, c.info.NumFrameBuffers)
		return FrameRange{}, errors.Wrapf(ErrRange, "%d frames exceed %d frame buffers", count, c.info.NumFrameBuffers)
	}
	claims, err := c.claimedRanges(ctx)
	if err != nil {
		return FrameRange{}, err
	}
	ranges := make([]FrameRange, len(claims))
	for i, cl := range claims {
		ranges[i] = cl.FrameRange
	}
	r, ok := firstFit(ranges, int32(count), int32(c.info.NumFrameBuffers))
	if !ok {
		c.logf("cannot find %d contiguous frames in %d frame buffers", count, c.info.NumFrameBuffers)
		return FrameRange{}, errors.Wrapf(ErrAllocation, "no %d contiguous free frames", count)
	}
	return r, nil
}

// lockAllocation takes the card mutex and then the cross-process lock,
// if any. The returned function releases both.
func (c *Card) lockAllocation() (func(), error) {
	c.allocMu.Lock()
	if c.allocLock == nil {
		return c.allocMu.Unlock, nil
	}
	if err := c.allocLock.Lock(); err != nil {
		c.allocMu.Unlock()
		return nil, errors.Wrap(err, "allocation lock")
	}
	return func() {
		if err := c.allocLock.Unlock(); err != nil {
			c.logf("failed to release allocation lock: %v", err)
		}
		c.allocMu.Unlock()
	}, nil
}
