// ntv2d - stream frames from NTV2 video devices
//  Copyright (C) 2018, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package throttle limits how often dropped-frame events are reported.
// A channel that cannot keep up drops frames on every tick and the
// events would otherwise flood the event queue.
package throttle

import (
	"log"
	"sync"
	"time"

	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/autocirculate/driver"
)

type DropEventListener interface {
	WhenDropped(ch driver.Channel, frames uint32)
}

type nullListener struct{}

func (nullListener) WhenDropped(driver.Channel, uint32) {}

func NewDropReporter(config Config, listener DropEventListener) *DropReporter {
	return NewDropReporterWithClock(config, listener, new(realClock))
}

// NewDropReporterWithClock returns a reporter that passes at most
// config.BucketSize events in a burst, refilling the whole bucket over
// config.MinRefill.
func NewDropReporterWithClock(config Config, listener DropEventListener, clock ratelimit.Clock) *DropReporter {
	if listener == nil {
		listener = nullListener{}
	}
	r := &DropReporter{
		listener: listener,
		channels: make(map[driver.Channel]*dropCount),
	}
	if config.ApplyThrottling && config.BucketSize > 0 && config.MinRefill > 0 {
		rate := float64(config.BucketSize) / config.MinRefill.Seconds()
		r.bucket = ratelimit.NewBucketWithRateAndClock(rate, config.BucketSize, clock)
	}
	return r
}

// DropReporter watches the dropped-frame counters of the running
// channels and tells its listener when they go up. Drops seen while
// throttled are carried into the next event that gets through.
type DropReporter struct {
	mu       sync.Mutex
	listener DropEventListener
	bucket   *ratelimit.Bucket
	channels map[driver.Channel]*dropCount
}

type dropCount struct {
	last       uint32
	suppressed uint32
}

// Update records the dropped-frame counter read from the status of ch.
func (r *DropReporter) Update(ch driver.Channel, dropped uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.channels[ch]
	if !ok {
		c = &dropCount{}
		r.channels[ch] = c
	}
	if dropped < c.last {
		// The channel was re-initialized.
		c.last = 0
	}
	if dropped == c.last {
		return
	}
	n := dropped - c.last + c.suppressed
	c.last = dropped

	if r.bucket != nil && r.bucket.TakeAvailable(1) == 0 {
		if c.suppressed == 0 {
			log.Printf("%s: dropped-frame events throttled", ch)
		}
		c.suppressed = n
		return
	}
	c.suppressed = 0
	r.listener.WhenDropped(ch, n)
}

// Forget clears what is known about ch, for when it is stopped.
func (r *DropReporter) Forget(ch driver.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, ch)
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

// Now implements Clock.Now by calling time.Now.
func (realClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.Sleep by calling time.Sleep.
func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
