// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package timecode implements SMPTE timecode arithmetic and the RP188
// register layout used to carry timecode to and from the device.
package timecode

import (
	"fmt"
	"math"
)

// Timecode is a position expressed as a frame count since 00:00:00:00.
//
// For rates above 47.95 fps the hours/minutes/seconds/frames view uses
// standard (halved or quartered) frame numbers, so one displayed
// frame spans two or four counted frames.
type Timecode struct {
	Frame uint32
}

func round(v float64) uint32 {
	return uint32(math.Floor(v + 0.5))
}

// hfrDivisor returns how many counted frames map onto one displayed
// frame for the rate.
func hfrDivisor(rate FrameRate) uint32 {
	switch fps := rate.FPS(); {
	case fps >= 100:
		return 4
	case fps >= 47.9:
		return 2
	}
	return 1
}

// DropFrameAllowed reports whether drop-frame counting applies to
// the rate.
func DropFrameAllowed(rate FrameRate) bool {
	return rate.Valid() && !rate.Exact()
}

// FromHMSF converts hours, minutes, seconds and frames to a Timecode.
// Drop-frame positions that do not exist (frames 0 and 1 of a minute
// not divisible by ten) are rounded up to the next valid frame.
func FromHMSF(h, m, s, f uint32, rate FrameRate, drop bool) Timecode {
	if !rate.Valid() {
		return Timecode{}
	}
	div := hfrDivisor(rate)
	fps := rate.FPS() / float64(div)
	tb := round(fps)
	hourFrames := tb * 60 * 60
	minuteFrames := tb * 60

	var frame uint32
	if drop {
		dropFrames := round(fps * .066666)
		totalMinutes := 60*h + m
		if s == 0 && m%10 > 0 && f&^1 == 0 {
			f = dropFrames
		}
		frame = hourFrames*h + minuteFrames*m + tb*s + f - dropFrames*(totalMinutes-totalMinutes/10)
	} else {
		frame = hourFrames*h + minuteFrames*m + tb*s + f
	}
	return Timecode{Frame: frame * div}
}

// HMSF splits the timecode into hours, minutes, seconds and frames.
// Counts beyond 24 hours wrap.
func (tc Timecode) HMSF(rate FrameRate, drop bool) (h, m, s, f uint32) {
	if !rate.Valid() {
		return 0, 0, 0, 0
	}
	div := hfrDivisor(rate)
	frame := tc.Frame / div
	fps := rate.FPS() / float64(div)

	framesPerSec := round(fps)
	framesPerMin := framesPerSec * 60
	framesPerHr := framesPerMin * 60
	framesPerDay := framesPerHr * 24

	if !drop {
		frame %= framesPerDay
		h = frame / framesPerHr
		frame %= framesPerHr
		m = frame / framesPerMin
		frame %= framesPerMin
		s = frame / framesPerSec
		f = frame % framesPerSec
		return h, m, s, f
	}

	dropped := round(fps * .066666)
	dropFramesPerSec := framesPerSec - dropped
	dropFramesPerMin := 59*framesPerSec + dropFramesPerSec
	dropFramesPerTenMin := 9*dropFramesPerMin + framesPerMin
	dropFramesPerHr := dropFramesPerTenMin * 6
	dropFramesPerDay := dropFramesPerHr * 24

	frame %= dropFramesPerDay
	h = frame / dropFramesPerHr
	frame %= dropFramesPerHr
	m = 10 * (frame / dropFramesPerTenMin)
	frame %= dropFramesPerTenMin

	// The first minute of every ten is a full minute.
	if frame >= framesPerMin {
		m++
		frame -= framesPerMin
		m += frame / dropFramesPerMin
		frame %= dropFramesPerMin
	}

	if m%10 == 0 {
		s = frame / framesPerSec
		frame %= framesPerSec
	} else if frame >= dropFramesPerSec {
		s = 1
		frame -= dropFramesPerSec
		s += frame / framesPerSec
		frame %= framesPerSec
	}
	f = frame
	if s == 0 && m%10 != 0 {
		f += dropped
	}
	return h, m, s, f
}

// Format renders the timecode as HH:MM:SS:FF, with a ';' before the
// frames for drop-frame.
func (tc Timecode) Format(rate FrameRate, drop bool) string {
	h, m, s, f := tc.HMSF(rate, drop)
	delim := ":"
	if drop {
		delim = ";"
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%02d", h, m, s, delim, f)
}

// Add returns the timecode offset by n frames.
func (tc Timecode) Add(n int) Timecode {
	return Timecode{Frame: uint32(int64(tc.Frame) + int64(n))}
}
