// ntv2d - stream frames from NTV2 video devices
// Copyright (C) 2019, The Cacophony Project
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

package loglimiter

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// New returns a new LogLimiter with the configured minimum log interval.
func New(interval time.Duration) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		nowFunc:  time.Now,
		output:   log.Print,
		entries:  make(map[string]*entry),
	}
}

// LogLimiter will suppress log messages if the same log message is
// seen for the same key within some time interval. Each key (a
// channel, say) is limited independently.
type LogLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	nowFunc  func() time.Time
	output   func(...interface{})
	entries  map[string]*entry
}

type entry struct {
	message    string
	time       time.Time
	suppressed int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.Print(fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	limiter.PrintKey("", s)
}

// PrintKeyf is the formatting version of PrintKey.
func (limiter *LogLimiter) PrintKeyf(key, format string, v ...interface{}) {
	limiter.PrintKey(key, fmt.Sprintf(format, v...))
}

// PrintKey logs s unless it was the last message logged for key and
// was logged less than the interval ago. When a suppressed message is
// logged again, the number of repeats that were hidden is appended.
func (limiter *LogLimiter) PrintKey(key, s string) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.nowFunc()
	e, ok := limiter.entries[key]
	if !ok {
		e = new(entry)
		limiter.entries[key] = e
	} else if s == e.message && now.Sub(e.time) < limiter.interval {
		e.suppressed++
		return
	}

	if e.suppressed > 0 && s == e.message {
		limiter.output(fmt.Sprintf("%s (repeated %d times)", s, e.suppressed))
	} else {
		limiter.output(s)
	}
	e.message = s
	e.time = now
	e.suppressed = 0
}

// Reset forgets the last message of key so the next one is always
// logged.
func (limiter *LogLimiter) Reset(key string) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	delete(limiter.entries, key)
}
