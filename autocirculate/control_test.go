// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package autocirculate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/driver/sim"
)

func TestInitValidation(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCard(t, sim.New())

	tests := []struct {
		name string
		ch   driver.Channel
		p    InitParams
		kind error
	}{
		{"one frame", driver.Channel1, InitParams{FrameCount: 1, AudioSystem: noAudio}, ErrConfig},
		{"zero frames", driver.Channel1, InitParams{AudioSystem: noAudio}, ErrConfig},
		{"end before start", driver.Channel1, InitParams{Range: FrameRange{5, 3}, AudioSystem: noAudio}, ErrConfig},
		{"single frame range", driver.Channel1, InitParams{Range: FrameRange{5, 5}, AudioSystem: noAudio}, ErrConfig},
		{"past last frame", driver.Channel1, InitParams{Range: FrameRange{30, 32}, AudioSystem: noAudio}, ErrRange},
		{"too many audio channels", driver.Channel1, InitParams{FrameCount: 3, NumChannels: 9, AudioSystem: noAudio}, ErrConfig},
		{"missing audio system", driver.Channel1, InitParams{FrameCount: 3, AudioSystem: driver.AudioSystem6}, ErrConfig},
		{"missing channel", driver.Channel7, InitParams{FrameCount: 3, AudioSystem: noAudio}, ErrRange},
		{"bad channel", driver.Channel(12), InitParams{FrameCount: 3, AudioSystem: noAudio}, ErrRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.InitForOutput(ctx, tt.ch, tt.p)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestInitPacksOptions(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, logs := newTestCard(t, d)

	_, err := c.InitForOutput(ctx, driver.Channel2, InitParams{
		Range:       FrameRange{4, 9},
		FrameCount:  3,
		AudioSystem: driver.AudioSystem2,
		NumChannels: 8,
		Options: driver.WithRP188 | driver.WithAnc | driver.WithLTC | driver.WithColorCorrect |
			driver.WithFields | driver.WithMultiLinkAudio1,
	})
	require.NoError(t, err)
	assert.True(t, logs.contains("frame count 3 ignored"))

	cmd := lastCommand(d, driver.CmdInit)
	assert.Equal(t, driver.CrosspointChannel2, cmd.Crosspoint)
	assert.Equal(t, int32(4), cmd.LVal1)
	assert.Equal(t, int32(9), cmd.LVal2)
	assert.Equal(t, int32(driver.AudioSystem2|driver.AudioSystemPlus1), cmd.LVal3)
	assert.Equal(t, int32(8), cmd.LVal4)
	assert.Equal(t, int32(driver.WithFields), cmd.LVal6)
	assert.True(t, cmd.BVal1)
	assert.True(t, cmd.BVal2)
	assert.False(t, cmd.BVal3)
	assert.False(t, cmd.BVal4)
	assert.True(t, cmd.BVal5)
	assert.False(t, cmd.BVal6)
	assert.True(t, cmd.BVal7)
	assert.True(t, cmd.BVal8)

	st, err := c.Status(ctx, driver.Channel2)
	require.NoError(t, err)
	assert.Equal(t, driver.StateInitializing, st.State)
	assert.Equal(t, uint32(6), st.FrameCount())
}

func TestInitAudioControlDisablesAudioFlag(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, _ := newTestCard(t, d)

	_, err := c.InitForOutput(ctx, driver.Channel1, InitParams{
		FrameCount:  3,
		AudioSystem: driver.AudioSystem1,
		Options:     driver.WithAudioControl,
	})
	require.NoError(t, err)
	assert.False(t, lastCommand(d, driver.CmdInit).BVal1)
}

func TestInitOverlapPolicy(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, logs := newTestCard(t, d)

	_, err := c.InitForOutput(ctx, driver.Channel1, InitParams{Range: FrameRange{0, 5}, AudioSystem: noAudio})
	require.NoError(t, err)

	r, err := c.InitForOutput(ctx, driver.Channel2, InitParams{Range: FrameRange{3, 8}, AudioSystem: noAudio})
	require.NoError(t, err)
	assert.Equal(t, FrameRange{3, 8}, r)
	assert.True(t, logs.contains("overlap Output Ch1 using frames 0-5"))

	strict, _ := newTestCard(t, d, WithOverlapPolicy(OverlapReject))
	_, err = strict.InitForOutput(ctx, driver.Channel3, InitParams{Range: FrameRange{8, 10}, AudioSystem: noAudio})
	assert.True(t, errors.Is(err, ErrAllocation))
	_, err = strict.InitForOutput(ctx, driver.Channel3, InitParams{Range: FrameRange{9, 10}, AudioSystem: noAudio})
	assert.NoError(t, err)
}

func TestInitWarnsAboutFrameStoreInterference(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, logs := newTestCard(t, d)

	// Ch3 plays frame 4 outside AutoCirculate.
	require.NoError(t, driver.WriteFrameStoreEnabled(d, driver.Channel3, true))
	require.NoError(t, d.WriteRegister(driver.OutputFrame(driver.Channel3), 4, driver.MaskAll, 0))

	r, err := c.InitForOutput(ctx, driver.Channel1, InitParams{Range: FrameRange{2, 5}, AudioSystem: noAudio})
	require.NoError(t, err)
	assert.Equal(t, FrameRange{2, 5}, r)
	assert.True(t, logs.contains("sim0: Output Ch1: frames 2-5: interference from Ch3 frame store at frame 004"))

	// Allocated ranges are checked too.
	require.NoError(t, driver.WriteMode(d, driver.Channel2, driver.ModeCapture))
	require.NoError(t, driver.WriteFrameStoreEnabled(d, driver.Channel4, true))
	require.NoError(t, d.WriteRegister(driver.OutputFrame(driver.Channel4), 7, driver.MaskAll, 0))
	r, err = c.InitForInput(ctx, driver.Channel2, InitParams{FrameCount: 3, AudioSystem: noAudio})
	require.NoError(t, err)
	assert.Equal(t, FrameRange{6, 8}, r)
	assert.True(t, logs.contains("Input Ch2: frames 6-8: interference from Ch4 frame store at frame 007"))

	// Ch1's own frame store is not reported, nor is a disabled one.
	require.NoError(t, driver.WriteFrameStoreEnabled(d, driver.Channel3, false))
	require.NoError(t, c.Abort(ctx, driver.Channel1))
	_, err = c.InitForOutput(ctx, driver.Channel1, InitParams{Range: FrameRange{0, 5}, AudioSystem: noAudio})
	require.NoError(t, err)
	assert.False(t, logs.contains("frames 0-5: interference"))
}

func TestInitIPOutputForcesAnc(t *testing.T) {
	ctx := context.Background()
	d := sim.New(sim.With2110())
	c, logs := newTestCard(t, d)

	_, err := c.InitForOutput(ctx, driver.Channel1, InitParams{
		FrameCount:  3,
		AudioSystem: driver.AudioSystemInvalid,
		Options:     driver.WithRP188,
	})
	require.NoError(t, err)
	assert.True(t, lastCommand(d, driver.CmdInit).BVal7)
	assert.True(t, logs.contains("enabled Anc anyway"))
}

func TestInitWarnsWhenAudioOutgrowsBuffer(t *testing.T) {
	ctx := context.Background()
	d := sim.New(sim.WithFrameBuffers(64))
	c, logs := newTestCard(t, d)

	_, err := c.InitForOutput(ctx, driver.Channel1, InitParams{Range: FrameRange{0, 49}, AudioSystem: driver.AudioSystem1})
	require.NoError(t, err)
	assert.True(t, logs.contains("max buffer capacity of AudSys1"))
}

func TestInitRejectedByDriver(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, logs := newTestCard(t, d)
	d.FailCommand(driver.CmdInit, errors.New("busy"))

	_, err := c.InitForOutput(ctx, driver.Channel1, InitParams{FrameCount: 3, AudioSystem: driver.AudioSystemInvalid})
	assert.True(t, errors.Is(err, ErrDriverCall))
	assert.True(t, logs.contains("initialization failed"))
}

func TestStartAt(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, _ := newTestCard(t, d)
	_, err := c.InitForOutput(ctx, driver.Channel1, InitParams{FrameCount: 3, AudioSystem: driver.AudioSystemInvalid})
	require.NoError(t, err)

	require.NoError(t, c.StartAt(ctx, driver.Channel1, 0x123456789))
	cmd := lastCommand(d, driver.CmdStartAtTime)
	assert.Equal(t, int32(0x1), cmd.LVal1)
	assert.Equal(t, int32(0x23456789), cmd.LVal2)
	assert.Equal(t, driver.StateStartingAtTime, d.State(driver.CrosspointChannel1))
}

func TestStopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, _ := newTestCard(t, d)
	startCapture(t, c, d, driver.Channel1, InitParams{FrameCount: 4, AudioSystem: driver.AudioSystemInvalid})

	require.NoError(t, c.Stop(ctx, driver.Channel1))
	st, err := c.Status(ctx, driver.Channel1)
	require.NoError(t, err)
	assert.True(t, st.IsStopped())

	assert.NoError(t, c.Stop(ctx, driver.Channel1))
	assert.NoError(t, c.Stop(ctx, driver.Channel1))
}

func TestStopEscalatesToAbort(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, logs := newTestCard(t, d)
	startCapture(t, c, d, driver.Channel1, InitParams{FrameCount: 4, AudioSystem: driver.AudioSystemInvalid})
	d.SetStuck(driver.CrosspointInput1, true)

	require.NoError(t, c.Stop(ctx, driver.Channel1))
	assert.True(t, logs.contains("retrying with abort"))
	assert.Equal(t, driver.StateDisabled, d.State(driver.CrosspointInput1))

	aborts := 0
	for _, cmd := range d.Commands() {
		if cmd.Command == driver.CmdAbort {
			aborts++
		}
	}
	assert.Equal(t, 2, aborts, "one abort per crosspoint of the channel")
}

func TestStopFailsOnlyWhenBothCrosspointsFail(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, _ := newTestCard(t, d)
	d.FailCommand(driver.CmdStop, errors.New("ioctl failed"))

	err := c.Stop(ctx, driver.Channel1)
	assert.True(t, errors.Is(err, ErrDriverCall))
	var de *DriverError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "ACStop Output Ch1", de.Op)
}

func TestStopChannels(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, _ := newTestCard(t, d)
	p := InitParams{FrameCount: 3, AudioSystem: noAudio}
	startCapture(t, c, d, driver.Channel1, p)
	startCapture(t, c, d, driver.Channel2, p)

	require.NoError(t, c.StopChannels(ctx, []driver.Channel{driver.Channel1, driver.Channel2}, false))
	assert.Equal(t, driver.StateDisabled, d.State(driver.CrosspointInput1))
	assert.Equal(t, driver.StateDisabled, d.State(driver.CrosspointInput2))

	startCapture(t, c, d, driver.Channel1, p)
	err := c.StopChannels(ctx, []driver.Channel{driver.Channel1, driver.Channel(11)}, true)
	assert.True(t, errors.Is(err, ErrRange))
	assert.Equal(t, driver.StateDisabled, d.State(driver.CrosspointInput1))
}

func TestPauseResumeFlushPreRoll(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	c, _ := newTestCard(t, d)
	_, err := c.InitForOutput(ctx, driver.Channel1, InitParams{Range: FrameRange{0, 5}, AudioSystem: driver.AudioSystemInvalid})
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx, driver.Channel1))
	d.Tick()

	require.NoError(t, c.PreRoll(ctx, driver.Channel1, 2))
	assert.Equal(t, int32(2), lastCommand(d, driver.CmdPreroll).LVal1)

	require.NoError(t, c.Pause(ctx, driver.Channel1))
	assert.Equal(t, driver.StatePaused, d.State(driver.CrosspointChannel1))
	assert.False(t, lastCommand(d, driver.CmdPause).BVal1)

	require.NoError(t, c.Resume(ctx, driver.Channel1, true))
	cmd := lastCommand(d, driver.CmdPause)
	assert.True(t, cmd.BVal1)
	assert.True(t, cmd.BVal2)
	assert.Equal(t, driver.StateRunning, d.State(driver.CrosspointChannel1))

	require.NoError(t, c.Flush(ctx, driver.Channel1, true))
	assert.True(t, lastCommand(d, driver.CmdFlush).BVal1)

	require.NoError(t, c.SetActiveFrame(ctx, driver.Channel1, 3))
	assert.Equal(t, int32(3), lastCommand(d, driver.CmdSetActiveFrame).LVal1)
	st, err := c.Status(ctx, driver.Channel1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), st.ActiveFrame)

	err = c.SetActiveFrame(ctx, driver.Channel1, 9)
	assert.True(t, errors.Is(err, ErrDriverCall))
}
