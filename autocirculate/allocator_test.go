// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package autocirculate

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/driver/sim"
)

func TestFirstFit(t *testing.T) {
	claimed := []FrameRange{{7, 9}, {0, 3}}

	r, ok := firstFit(claimed, 3, 32)
	require.True(t, ok)
	assert.Equal(t, FrameRange{4, 6}, r)

	r, ok = firstFit(claimed, 4, 32)
	require.True(t, ok)
	assert.Equal(t, FrameRange{10, 13}, r)

	r, ok = firstFit(nil, 2, 32)
	require.True(t, ok)
	assert.Equal(t, FrameRange{0, 1}, r)

	_, ok = firstFit(claimed, 23, 32)
	assert.False(t, ok)
	_, ok = firstFit(claimed, 0, 32)
	assert.False(t, ok)
}

func TestFirstFitNestedClaims(t *testing.T) {
	r, ok := firstFit([]FrameRange{{0, 9}, {2, 4}, {10, 11}}, 2, 16)
	require.True(t, ok)
	assert.Equal(t, FrameRange{12, 13}, r)
}

func TestFrameRange(t *testing.T) {
	r := FrameRange{4, 6}
	assert.Equal(t, int32(3), r.Count())
	assert.Equal(t, "4-6", r.String())
	assert.True(t, r.Overlaps(FrameRange{6, 9}))
	assert.False(t, r.Overlaps(FrameRange{7, 9}))
	assert.True(t, FrameRange{}.IsZero())
	assert.Equal(t, int32(0), FrameRange{5, 3}.Count())
}

func TestInitAllocatesNextFreeBand(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, logs := newTestCard(t, d)
	require.NoError(t, driver.WriteMode(d, driver.Channel1, driver.ModeCapture))
	require.NoError(t, driver.WriteMode(d, driver.Channel2, driver.ModeCapture))

	r1, err := c.InitForInput(ctx, driver.Channel1, InitParams{
		FrameCount:  7,
		AudioSystem: driver.AudioSystem1,
	})
	require.NoError(t, err)
	assert.Equal(t, FrameRange{0, 6}, r1)

	r2, err := c.InitForInput(ctx, driver.Channel2, InitParams{
		FrameCount:  7,
		AudioSystem: driver.AudioSystemInvalid,
	})
	require.NoError(t, err)
	assert.Equal(t, FrameRange{7, 13}, r2)

	assert.False(t, logs.contains("overlap"))
	assert.True(t, logs.contains("sim0: Input Ch1 initialized using frames 0-6"))
}

func TestAllocationsNeverOverlap(t *testing.T) {
	ctx := context.Background()
	d := sim.New(sim.WithChannels(8), sim.WithFrameBuffers(64))
	c, _ := newTestCard(t, d)

	var got []FrameRange
	for i, n := range []int{3, 8, 2, 5, 4, 7, 2, 6} {
		ch := driver.Channel(i)
		r, err := c.InitForOutput(ctx, ch, InitParams{FrameCount: n, AudioSystem: driver.AudioSystemInvalid})
		require.NoError(t, err, "channel %s", ch)
		assert.Equal(t, int32(n), r.Count())
		for _, prev := range got {
			assert.False(t, prev.Overlaps(r), "%s overlaps %s", r, prev)
		}
		got = append(got, r)
	}
}

func TestFindUnallocatedFramesExhausted(t *testing.T) {
	ctx := context.Background()
	d := sim.New(sim.WithFrameBuffers(8))
	c, logs := newTestCard(t, d)

	_, err := c.InitForOutput(ctx, driver.Channel1, InitParams{Range: FrameRange{2, 5}, AudioSystem: driver.AudioSystemInvalid})
	require.NoError(t, err)

	_, err = c.FindUnallocatedFrames(ctx, 3)
	assert.True(t, errors.Is(err, ErrAllocation))
	assert.True(t, logs.contains("cannot find 3 contiguous frames"))

	r, err := c.FindUnallocatedFrames(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, FrameRange{0, 1}, r)

	_, err = c.FindUnallocatedFrames(ctx, 0)
	assert.True(t, errors.Is(err, ErrAllocation))
}

func TestFindUnallocatedFramesTooMany(t *testing.T) {
	ctx := context.Background()
	d := sim.New(sim.WithFrameBuffers(8))
	c, _ := newTestCard(t, d)

	counts := []int{9, math.MaxInt32}
	if strconv.IntSize == 64 {
		// Would wrap to 3 as an int32.
		wraps := int64(1) << 32
		counts = append(counts, int(wraps+3))
	}
	require.NoError(t, driver.WriteMode(d, driver.Channel1, driver.ModeCapture))
	for _, count := range counts {
		_, err := c.FindUnallocatedFrames(ctx, count)
		assert.True(t, errors.Is(err, ErrRange), "%d", count)

		_, err = c.InitForInput(ctx, driver.Channel1, InitParams{FrameCount: count, AudioSystem: driver.AudioSystemInvalid})
		assert.True(t, errors.Is(err, ErrRange), "%d", count)
	}

	r, err := c.FindUnallocatedFrames(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, FrameRange{0, 7}, r)
}

func TestQuadModeClaimsFourTimesTheFrames(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, _ := newTestCard(t, d)
	require.NoError(t, driver.WriteQuadMode(d, driver.Channel1, true))

	_, err := c.InitForOutput(ctx, driver.Channel1, InitParams{Range: FrameRange{0, 3}, AudioSystem: driver.AudioSystemInvalid})
	require.NoError(t, err)

	r, err := c.FindUnallocatedFrames(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, FrameRange{16, 17}, r)
}

type countingLock struct {
	locks, unlocks int
	err            error
}

func (l *countingLock) Lock() error {
	if l.err != nil {
		return l.err
	}
	l.locks++
	return nil
}

func (l *countingLock) Unlock() error {
	l.unlocks++
	return nil
}

func TestAllocationLock(t *testing.T) {
	ctx := context.Background()
	lock := new(countingLock)
	c, _ := newTestCard(t, sim.New(), WithAllocationLock(lock))

	_, err := c.InitForOutput(ctx, driver.Channel1, InitParams{FrameCount: 3, AudioSystem: driver.AudioSystemInvalid})
	require.NoError(t, err)
	_, err = c.FindUnallocatedFrames(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, lock.locks)
	assert.Equal(t, 2, lock.unlocks)

	lock.err = errors.New("locked elsewhere")
	_, err = c.InitForOutput(ctx, driver.Channel2, InitParams{FrameCount: 3, AudioSystem: driver.AudioSystemInvalid})
	assert.Error(t, err)

	// The card mutex must have been released.
	lock.err = nil
	_, err = c.FindUnallocatedFrames(ctx, 2)
	assert.NoError(t, err)
}
