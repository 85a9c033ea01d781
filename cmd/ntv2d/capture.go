// Copyright 2018 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/TheCacophonyProject/window"
	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/autocirculate/autocirculate"
	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/headers"
	"github.com/TheCacophonyProject/autocirculate/loglimiter"
	"github.com/TheCacophonyProject/autocirculate/throttle"
)

const (
	ancFieldBytes = 2048

	verticalTimeout       = 100 * time.Millisecond
	idlePoll              = 10 * time.Second
	maxConsecutiveFailure = 30
	failureLogInterval    = time.Minute
	secsPerSdNotify       = 5
)

type transferErr struct {
	cause error
}

func (e *transferErr) Error() string {
	return e.cause.Error()
}

// capturer runs AutoCirculate capture on one channel and streams the
// frames to a frameOutput.
type capturer struct {
	card   *autocirculate.Card
	ch     driver.Channel
	params autocirculate.InitParams
	window *window.Window
	output *frameOutput
	tally  tally
	drops  *throttle.DropReporter
	logs   *loglimiter.LogLimiter
	pacer  *ratelimit.Bucket
	notify func()

	frame          []byte
	xfer           autocirculate.CaptureTransfer
	framesPerCheck int

	// wake interrupts an idle wait when the channel is enabled.
	wake chan struct{}

	mu      sync.Mutex
	enabled bool
	abort   bool
	running bool
}

type captureConfig struct {
	card     *autocirculate.Card
	ch       driver.Channel
	params   autocirculate.InitParams
	window   *window.Window
	dial     dialFunc
	tally    tally
	drops    *throttle.DropReporter
	clock    ratelimit.Clock
	watchdog func()
}

func newCapturer(conf captureConfig) (*capturer, error) {
	d := conf.card.Driver()
	info := conf.card.Info()
	if err := driver.WriteMode(d, conf.ch, driver.ModeCapture); err != nil {
		return nil, err
	}
	std, err := driver.ReadStandard(d, conf.ch)
	if err != nil {
		return nil, err
	}
	rate, err := driver.ReadFrameRate(d, conf.ch)
	if err != nil {
		return nil, err
	}

	videoBytes := int(info.FrameBufferBytes)
	audioBytes := 0
	if conf.params.AudioSystem.Valid() {
		audioBytes = audioBytesPerFrame(info, rate.FPS())
	}
	header := headers.New(info.Name, info.SerialNumber, int(conf.ch)+1,
		rate.String(), std.String(), videoBytes, audioBytes, ancFieldBytes)

	frame := make([]byte, header.FrameSize())
	c := &capturer{
		card:    conf.card,
		ch:      conf.ch,
		params:  conf.params,
		window:  conf.window,
		output:  newFrameOutput(conf.dial, header),
		tally:   conf.tally,
		drops:   conf.drops,
		logs:    loglimiter.New(failureLogInterval),
		notify:  conf.watchdog,
		frame:   frame,
		wake:    make(chan struct{}, 1),
		enabled: true,
		xfer: autocirculate.CaptureTransfer{
			Video: frame[:videoBytes],
			Audio: frame[videoBytes : videoBytes+audioBytes],
			AncF1: frame[videoBytes+audioBytes : videoBytes+audioBytes+ancFieldBytes],
			AncF2: frame[videoBytes+audioBytes+ancFieldBytes:],
		},
		framesPerCheck: int(rate.FPS()*secsPerSdNotify) + 1,
	}
	if c.tally == nil {
		c.tally = noTally{}
	}
	if c.notify == nil {
		c.notify = func() {}
	}
	if c.drops == nil {
		c.drops = throttle.NewDropReporter(throttle.Config{}, nil)
	}
	clock := conf.clock
	if clock == nil {
		clock = realClock{}
	}
	// Status is polled at most twice a frame.
	c.pacer = ratelimit.NewBucketWithRateAndClock(2*rate.FPS(), 2, clock)
	return c, nil
}

func audioBytesPerFrame(info driver.Info, fps float64) int {
	samples := int(float64(info.AudioSampleRate)/fps) + 1
	return samples * int(info.AudioChannels) * 4
}

// setEnabled is called from the D-Bus service.
func (c *capturer) setEnabled(enabled, abort bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.abort = abort
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *capturer) wanted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && c.window.Active()
}

func (c *capturer) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *capturer) setRunning(running bool) {
	c.mu.Lock()
	c.running = running
	c.mu.Unlock()
	c.tally.Set(running)
}

func (c *capturer) run(ctx context.Context) error {
	defer c.output.Close()
	defer c.stop()

	failures := 0
	frames := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		want := c.wanted()
		running := c.isRunning()
		switch {
		case want && !running:
			if err := c.start(ctx); err != nil {
				return &transferErr{err}
			}
		case !want && running:
			c.stop()
			continue
		case !want:
			c.notify()
			c.idle(ctx, c.idleWait())
			continue
		}

		captured, err := c.step(ctx)
		if err != nil {
			failures++
			c.logs.PrintKeyf(c.ch.String(), "%s: capture failed: %v", c.ch, err)
			if failures >= maxConsecutiveFailure {
				return &transferErr{err}
			}
			continue
		}
		if failures > 0 {
			c.logs.Reset(c.ch.String())
			failures = 0
		}
		if captured {
			if frames++; frames >= c.framesPerCheck {
				c.notify()
				frames = 0
			}
		}
	}
}

func (c *capturer) idleWait() time.Duration {
	if until := c.window.Until(); until > 0 && until < idlePoll {
		return until
	}
	return idlePoll
}

// idle waits for d, ctx or setEnabled, whichever comes first.
func (c *capturer) idle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	case <-c.wake:
	}
}

func (c *capturer) start(ctx context.Context) error {
	// A channel left behind by an earlier run cannot be initialized.
	st, err := c.card.Status(ctx, c.ch)
	if err != nil {
		return err
	}
	if !st.IsStopped() {
		log.Printf("%s: aborting stale %s channel", c.ch, st.State)
		if err := c.card.Abort(ctx, c.ch); err != nil {
			return err
		}
	}

	r, err := c.card.InitForInput(ctx, c.ch, c.params)
	if err != nil {
		return err
	}
	if err := c.card.Start(ctx, c.ch); err != nil {
		if abortErr := c.card.Abort(context.Background(), c.ch); abortErr != nil {
			log.Printf("%s: abort after failed start: %v", c.ch, abortErr)
		}
		return err
	}
	log.Printf("%s: capturing into frames %s", c.ch, r)
	c.setRunning(true)
	return nil
}

func (c *capturer) stop() {
	if !c.isRunning() {
		return
	}
	c.mu.Lock()
	abort := c.abort
	c.mu.Unlock()

	ctx := context.Background()
	var err error
	if abort {
		err = c.card.Abort(ctx, c.ch)
	} else {
		err = c.card.Stop(ctx, c.ch)
	}
	if err != nil {
		log.Printf("%s: stop failed: %v", c.ch, err)
	}
	c.drops.Forget(c.ch)
	c.setRunning(false)
	log.Printf("%s: capture stopped", c.ch)
}

// step transfers the next captured frame when one is ready, otherwise
// it waits for the next vertical interrupt.
func (c *capturer) step(ctx context.Context) (bool, error) {
	c.pacer.Wait(1)
	st, err := c.card.Status(ctx, c.ch)
	if err != nil {
		return false, err
	}
	if !st.HasAvailableInputFrame() {
		err := c.card.WaitForVertical(ctx, c.ch, verticalTimeout)
		if err != nil && !errors.Is(err, autocirculate.ErrTimeout) && ctx.Err() == nil {
			return false, err
		}
		return false, nil
	}

	if err := c.card.Transfer(ctx, c.ch, &c.xfer); err != nil {
		return false, err
	}
	zeroFrom(c.xfer.Audio, c.xfer.Status.AudioBufferSize)
	c.drops.Update(c.ch, c.xfer.Status.FramesDropped)
	c.output.Write(c.frame)
	return true, nil
}

func zeroFrom(b []byte, n uint32) {
	if uint64(n) >= uint64(len(b)) {
		return
	}
	for i := range b[n:] {
		b[int(n)+i] = 0
	}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
