// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package autocirculate

import (
	"context"
	"time"

	"github.com/TheCacophonyProject/autocirculate/driver"
)

// Status returns the AutoCirculate state of the crosspoint ch is
// currently configured for. A channel the driver has no crosspoint
// state for reports a stopped status.
func (c *Card) Status(ctx context.Context, ch driver.Channel) (*driver.Status, error) {
	if ch.Valid() && uint32(ch) >= c.info.NumChannels {
		return driver.NewStatus(driver.OutputCrosspoint(ch)), nil
	}
	x, err := c.crosspoint(ch)
	if err != nil {
		return nil, err
	}
	return c.crosspointStatus(ctx, x)
}

func (c *Card) crosspointStatus(ctx context.Context, x driver.Crosspoint) (*driver.Status, error) {
	st := driver.NewStatus(x)
	if !x.Valid() {
		return st, nil
	}
	if err := c.drv.Message(ctx, st); err != nil {
		return nil, driverErr("status "+x.String(), err)
	}
	return st, nil
}

// FrameStamp returns the metadata the driver recorded for device frame
// buffer frame of ch.
func (c *Card) FrameStamp(ctx context.Context, ch driver.Channel, frame uint32) (*driver.FrameStamp, error) {
	if err := c.checkChannel(ch); err != nil {
		return nil, err
	}
	fs := driver.NewFrameStamp(ch, frame)
	if err := c.drv.Message(ctx, fs); err != nil {
		return nil, driverErr("frame stamp "+ch.String(), err)
	}
	return fs, nil
}

// InterruptCount returns how many times irq has fired.
func (c *Card) InterruptCount(irq driver.Interrupt) (uint32, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	n, err := c.drv.InterruptCount(irq)
	if err != nil {
		return 0, driverErr("interrupt count "+irq.String(), err)
	}
	return n, nil
}

// WaitForInterrupt blocks until irq fires or timeout expires. An
// expired wait returns an error matching ErrTimeout.
func (c *Card) WaitForInterrupt(ctx context.Context, irq driver.Interrupt, timeout time.Duration) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	err := c.drv.WaitForInterrupt(ctx, irq, timeout)
	switch {
	case err == nil:
		return nil
	case err == driver.ErrTimeout:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return driverErr("wait for "+irq.String(), err)
}

// WaitForVertical waits for the next vertical interrupt in the current
// direction of ch.
func (c *Card) WaitForVertical(ctx context.Context, ch driver.Channel, timeout time.Duration) error {
	x, err := c.crosspoint(ch)
	if err != nil {
		return err
	}
	return c.WaitForInterrupt(ctx, driver.VerticalFor(x), timeout)
}
