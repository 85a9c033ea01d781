// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package timecode

import "fmt"

// FrameRate identifies a video frame rate. The values match the
// frame rate codes stored in the device's channel control registers.
type FrameRate uint32

const (
	RateUnknown FrameRate = iota
	Rate6000
	Rate5994
	Rate3000
	Rate2997
	Rate2500
	Rate2400
	Rate2398
	Rate5000
	Rate4800
	Rate4795
	Rate12000
	Rate11988
	Rate1500
	Rate1498
)

type ratio struct {
	num, den int64
}

var rateRatios = map[FrameRate]ratio{
	Rate6000:  {60000, 1000},
	Rate5994:  {60000, 1001},
	Rate3000:  {30000, 1000},
	Rate2997:  {30000, 1001},
	Rate2500:  {25000, 1000},
	Rate2400:  {24000, 1000},
	Rate2398:  {24000, 1001},
	Rate5000:  {50000, 1000},
	Rate4800:  {48000, 1000},
	Rate4795:  {48000, 1001},
	Rate12000: {120000, 1000},
	Rate11988: {120000, 1001},
	Rate1500:  {15000, 1000},
	Rate1498:  {15000, 1001},
}

// Valid reports whether r is a known frame rate.
func (r FrameRate) Valid() bool {
	_, ok := rateRatios[r]
	return ok
}

// Ratio returns the rate as a num/den fraction of frames per second.
func (r FrameRate) Ratio() (num, den int64) {
	rr, ok := rateRatios[r]
	if !ok {
		return 0, 0
	}
	return rr.num, rr.den
}

// FPS returns the frame rate in frames per second.
func (r FrameRate) FPS() float64 {
	num, den := r.Ratio()
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Exact is true for integral rates. Only non-integral (1000/1001)
// rates may use drop-frame counting.
func (r FrameRate) Exact() bool {
	rr, ok := rateRatios[r]
	return ok && rr.den == 1000
}

// FrameDurationNanos returns the length of one frame in nanoseconds.
func (r FrameRate) FrameDurationNanos() int64 {
	num, den := r.Ratio()
	if num == 0 {
		return 0
	}
	return den * 1000000000 / num
}

func (r FrameRate) String() string {
	if !r.Valid() {
		return "unknown"
	}
	if r.Exact() {
		return fmt.Sprintf("%d", int(r.FPS()))
	}
	return fmt.Sprintf("%.2f", r.FPS())
}

// ParseFrameRate maps a textual rate such as "29.97" or "25" to a
// FrameRate.
func ParseFrameRate(s string) (FrameRate, error) {
	for r := range rateRatios {
		if r.String() == s {
			return r, nil
		}
	}
	return RateUnknown, fmt.Errorf("unknown frame rate %q", s)
}
