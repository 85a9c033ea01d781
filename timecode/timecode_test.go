// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package timecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNonDropRoundTrip(t *testing.T) {
	tc := FromHMSF(1, 2, 3, 4, Rate2500, false)
	assert.Equal(t, uint32(((3600+120+3)*25)+4), tc.Frame)

	h, m, s, f := tc.HMSF(Rate2500, false)
	assert.Equal(t, []uint32{1, 2, 3, 4}, []uint32{h, m, s, f})
	assert.Equal(t, "01:02:03:04", tc.Format(Rate2500, false))
}

func TestDropFrameCounts(t *testing.T) {
	// The first minute is a full minute.
	assert.Equal(t, uint32(1800), FromHMSF(0, 1, 0, 2, Rate2997, true).Frame)
	// Ten minutes of 29.97 drop-frame is 17982 frames.
	assert.Equal(t, uint32(17982), FromHMSF(0, 10, 0, 0, Rate2997, true).Frame)
	// One hour is 107892 frames.
	assert.Equal(t, uint32(107892), FromHMSF(1, 0, 0, 0, Rate2997, true).Frame)
}

func TestDropFrameRoundTrip(t *testing.T) {
	for frame := uint32(0); frame < 40000; frame += 7 {
		tc := Timecode{Frame: frame}
		h, m, s, f := tc.HMSF(Rate2997, true)
		assert.Equal(t, frame, FromHMSF(h, m, s, f, Rate2997, true).Frame, "frame %d", frame)
	}
}

func TestDropFrameSkipsMissingLabels(t *testing.T) {
	// 00:01:00;00 does not exist; it is rounded up to 00:01:00;02.
	tc := FromHMSF(0, 1, 0, 0, Rate2997, true)
	assert.Equal(t, "00:01:00;02", tc.Format(Rate2997, true))

	before := tc.Add(-1)
	assert.Equal(t, "00:00:59;29", before.Format(Rate2997, true))
}

func TestHighFrameRateUsesStandardFrames(t *testing.T) {
	tc := FromHMSF(0, 0, 1, 10, Rate5000, false)
	assert.Equal(t, uint32((25+10)*2), tc.Frame)

	h, m, s, f := tc.HMSF(Rate5000, false)
	assert.Equal(t, []uint32{0, 0, 1, 10}, []uint32{h, m, s, f})
}

func TestUnknownRate(t *testing.T) {
	assert.Equal(t, uint32(0), FromHMSF(1, 1, 1, 1, RateUnknown, false).Frame)
	h, m, s, f := Timecode{Frame: 100}.HMSF(RateUnknown, false)
	assert.Equal(t, []uint32{0, 0, 0, 0}, []uint32{h, m, s, f})
}

func TestRP188Layout(t *testing.T) {
	r := NewRP188(12, 34, 56, 23, true)
	assert.Equal(t, uint32(0x3|0x2<<8|DropFrameBit|0x6<<16|0x5<<24), r.Low)
	assert.Equal(t, uint32(0x4|0x3<<8|0x2<<16|0x1<<24), r.High)
	assert.True(t, r.DropFrame())
	assert.True(t, r.Valid())

	h, m, s, f := r.HMSF()
	assert.Equal(t, []uint32{12, 34, 56, 23}, []uint32{h, m, s, f})
	assert.Equal(t, "12:34:56;23", r.String())
}

func TestRP188Invalid(t *testing.T) {
	assert.False(t, InvalidRP188.Valid())
	assert.Equal(t, "--:--:--:--", InvalidRP188.String())
	assert.True(t, RP188{}.Valid())
}

func TestRP188TimecodeIgnoresDropFlagAtIntegralRate(t *testing.T) {
	r := NewRP188(0, 1, 0, 0, true)
	assert.Equal(t, uint32(60*25), r.Timecode(Rate2500).Frame)

	back := FromTimecode(r.Timecode(Rate2500), Rate2500, true)
	assert.False(t, back.DropFrame())
}

func TestTimecodesSetAll(t *testing.T) {
	tcs := NewTimecodes()
	for _, v := range tcs {
		assert.False(t, v.Valid())
	}

	v := NewRP188(1, 0, 0, 0, false)
	tcs.SetAll(v, false)
	assert.Equal(t, v, tcs[IndexDefault])
	assert.Equal(t, v, tcs[IndexSDI3])
	assert.Equal(t, v, tcs[IndexSDI8LTC])
	assert.False(t, tcs[IndexSDI1_2].Valid())
	assert.False(t, tcs[IndexLTC1].Valid())

	tcs.SetAll(v, true)
	assert.Equal(t, v, tcs[IndexSDI1_2])
}

func TestSDIIndexes(t *testing.T) {
	assert.Equal(t, []Index{IndexSDI2, IndexSDI2LTC, IndexSDI2_2}, SDIIndexes(1))
	assert.Equal(t, []Index{IndexSDI6, IndexSDI6LTC, IndexSDI6_2}, SDIIndexes(5))
	assert.Nil(t, SDIIndexes(8))

	assert.True(t, IndexSDI5.IsVITC1())
	assert.True(t, IndexSDI3LTC.IsEmbeddedLTC())
	assert.True(t, IndexSDI7_2.IsVITC2())
	assert.True(t, IndexLTC2.IsAnalogLTC())
	assert.Equal(t, "SDI3-LTC", IndexSDI3LTC.String())
	assert.Equal(t, "LTC1", IndexLTC1.String())
}

func TestParseFrameRate(t *testing.T) {
	r, err := ParseFrameRate("29.97")
	assert.NoError(t, err)
	assert.Equal(t, Rate2997, r)

	r, err = ParseFrameRate("50")
	assert.NoError(t, err)
	assert.Equal(t, Rate5000, r)

	_, err = ParseFrameRate("31")
	assert.Error(t, err)
}
