// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package timecode

import "fmt"

const (
	rp188Invalid = 0xFFFFFFFF

	// DropFrameBit marks drop-frame counting in the low word.
	DropFrameBit = 1 << 10

	// LTCReceivedBit is set in DBB when analog LTC was present on the
	// LTC input.
	LTCReceivedBit = 0x00020000
)

// RP188 is one timecode value in the driver's register layout: a
// distributed binary bits word plus the low and high words of an
// SMPTE 12M LTC frame.
type RP188 struct {
	DBB  uint32
	Low  uint32
	High uint32
}

// InvalidRP188 is the "no timecode" value.
var InvalidRP188 = RP188{DBB: rp188Invalid, Low: rp188Invalid, High: rp188Invalid}

// Valid reports whether the value carries a timecode.
func (r RP188) Valid() bool {
	return !(r.Low == rp188Invalid && r.High == rp188Invalid)
}

// DropFrame returns the drop-frame flag carried in the low word.
func (r RP188) DropFrame() bool {
	return r.Low&DropFrameBit != 0
}

// NewRP188 BCD-encodes hours, minutes, seconds and frames. DBB is left
// zero.
func NewRP188(h, m, s, f uint32, drop bool) RP188 {
	lo := (f % 10) | ((f/10)&0x3)<<8 | (s%10)<<16 | ((s/10)&0x7)<<24
	if drop {
		lo |= DropFrameBit
	}
	hi := (m % 10) | ((m/10)&0x7)<<8 | (h%10)<<16 | ((h/10)&0x3)<<24
	return RP188{Low: lo, High: hi}
}

// HMSF decodes the BCD fields.
func (r RP188) HMSF() (h, m, s, f uint32) {
	h = (r.High>>16)&0xF + ((r.High>>24)&0x3)*10
	m = r.High&0xF + ((r.High>>8)&0x7)*10
	s = (r.Low>>16)&0xF + ((r.Low>>24)&0x7)*10
	f = r.Low&0xF + ((r.Low>>8)&0x3)*10
	return h, m, s, f
}

// Timecode converts the value to a frame count at the given rate. The
// drop-frame flag is honoured only for rates that allow it.
func (r RP188) Timecode(rate FrameRate) Timecode {
	h, m, s, f := r.HMSF()
	return FromHMSF(h, m, s, f, rate, r.DropFrame() && DropFrameAllowed(rate))
}

// FromTimecode encodes tc at the given rate. DBB is left zero.
func FromTimecode(tc Timecode, rate FrameRate, drop bool) RP188 {
	drop = drop && DropFrameAllowed(rate)
	h, m, s, f := tc.HMSF(rate, drop)
	return NewRP188(h, m, s, f, drop)
}

func (r RP188) String() string {
	if !r.Valid() {
		return "--:--:--:--"
	}
	h, m, s, f := r.HMSF()
	delim := ":"
	if r.DropFrame() {
		delim = ";"
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%02d", h, m, s, delim, f)
}
