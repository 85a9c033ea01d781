// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package anc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/autocirculate/timecode"
)

func testPackets() []*Packet {
	return []*Packet{
		{DID: 0x61, SDID: 0x01, Location: VANCLocation(9), Payload: []byte{1, 2, 3, 4, 5}},
		NewVPID(0x89CA0001, 10),
		{DID: 0x45, SDID: 0x01, Location: VANCLocation(572), Payload: []byte{0xFF, 0x00}},
	}
}

func TestGUMPRoundTrip(t *testing.T) {
	var b []byte
	for _, p := range testPackets() {
		var err error
		b, err = AppendGUMP(b, p)
		require.NoError(t, err)
	}
	// Trailing zeros end the buffer.
	b = append(b, make([]byte, 32)...)

	assert.True(t, IsGUMP(b))
	assert.False(t, IsRTP(b))

	pkts, err := DecodeGUMP(b)
	require.NoError(t, err)
	assert.Equal(t, testPackets(), pkts)
}

func TestGUMPHeaderBytes(t *testing.T) {
	b, err := AppendGUMP(nil, &Packet{
		DID: 0x41, SDID: 0x01,
		Location: Location{Line: 572, Channel: ChannelY, Space: SpaceVANC},
		Payload:  []byte{0x10},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x80 | 0x20 | 0x04, 0x3C, 0x41, 0x01, 0x01, 0x10, 0x41 + 0x01 + 0x01 + 0x10}, b)
}

func TestGUMPChecksumMismatch(t *testing.T) {
	b, err := AppendGUMP(nil, NewVPID(1, 10))
	require.NoError(t, err)
	b[len(b)-1]++
	_, err = DecodeGUMP(b)
	assert.Error(t, err)
}

func TestGUMPBadStart(t *testing.T) {
	_, err := DecodeGUMP([]byte{0x12, 0x00})
	assert.Error(t, err)

	pkts, err := DecodeGUMP(make([]byte, 16))
	assert.NoError(t, err)
	assert.Empty(t, pkts)
}

func TestRTPRoundTrip(t *testing.T) {
	b, err := EncodeRTP(testPackets(), Field1, RTPOptions{SequenceNumber: 7, SSRC: 0x1234})
	require.NoError(t, err)
	assert.True(t, IsRTP(b))
	assert.False(t, IsGUMP(b))
	// Each anc packet ends on a 32 bit boundary.
	assert.Equal(t, 0, (len(b)-12-8)%4)

	pkts, field, err := DecodeRTP(append(b, make([]byte, 64)...))
	require.NoError(t, err)
	assert.Equal(t, Field1, field)
	assert.Equal(t, testPackets(), pkts)
}

func TestRTPEmpty(t *testing.T) {
	b, err := EncodeRTP(nil, FieldProgressive, RTPOptions{})
	require.NoError(t, err)
	pkts, field, err := DecodeRTP(b)
	require.NoError(t, err)
	assert.Empty(t, pkts)
	assert.Equal(t, FieldProgressive, field)
}

func TestRTPChecksumMismatch(t *testing.T) {
	b, err := EncodeRTP([]*Packet{NewVPID(0x01020304, 10)}, FieldProgressive, RTPOptions{})
	require.NoError(t, err)
	// Flip a bit inside the first user data word.
	b[12+8+7] ^= 0x01
	_, _, err = DecodeRTP(b)
	assert.Error(t, err)
}

func TestWord10Parity(t *testing.T) {
	assert.Equal(t, uint32(0x200), word10(0x00))
	assert.Equal(t, uint32(0x101), word10(0x01))
	assert.Equal(t, uint32(0x203), word10(0x03))
	assert.Equal(t, uint32(0x260), word10(0x60))
}

func TestListSplitAndSort(t *testing.T) {
	l := new(List)
	l.Add(testPackets()...)
	l.Add(NewVPID(2, 1))
	l.Sort()

	lines := []uint16{}
	for _, p := range l.Packets() {
		lines = append(lines, p.Location.Line)
	}
	assert.Equal(t, []uint16{1, 9, 10, 572}, lines)

	f1, f2 := l.Split(564)
	assert.Len(t, f1, 3)
	assert.Len(t, f2, 1)

	f1, f2 = l.Split(0)
	assert.Len(t, f1, 4)
	assert.Empty(t, f2)

	assert.Equal(t, 2, l.CountKind(KindVPID))
	assert.Equal(t, 1, l.CountID(0x61, 0x01))
}

func TestParseBuffersMixed(t *testing.T) {
	f1 := make([]byte, 256)
	f2 := make([]byte, 256)
	l := new(List)
	l.Add(testPackets()...)
	_, _, err := l.WriteGUMP(f1, f2, 564)
	require.NoError(t, err)

	got, coding, err := ParseBuffers(f1, f2)
	require.NoError(t, err)
	assert.Equal(t, CodingGUMP, coding)
	assert.Equal(t, 3, got.Len())

	n1, n2, err := got.WriteRTP(f1, f2, 564, RTPOptions{})
	require.NoError(t, err)
	assert.True(t, n1 > 0)
	assert.True(t, n2 > 0)

	got, coding, err = ParseBuffers(f1, f2)
	require.NoError(t, err)
	assert.Equal(t, CodingRTP, coding)
	assert.Equal(t, testPackets(), got.Packets())

	_, coding, err = ParseBuffers(nil, make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, CodingNone, coding)
}

func TestWriteRTPTooSmall(t *testing.T) {
	l := new(List)
	l.Add(testPackets()...)
	_, _, err := l.WriteRTP(make([]byte, 16), nil, 0, RTPOptions{})
	assert.Error(t, err)
}

func TestATCRoundTrip(t *testing.T) {
	tc := timecode.NewRP188(1, 2, 3, 4, true)
	tc.DBB = 0x00004500

	p, err := NewATC(tc, timecode.Rate2997, ATCVITC1, 9)
	require.NoError(t, err)
	assert.Equal(t, KindATC, p.Kind())
	assert.Len(t, p.Payload, 16)

	got, typ, err := DecodeATC(p)
	require.NoError(t, err)
	assert.Equal(t, ATCVITC1, typ)
	assert.Equal(t, uint32(0x4501), got.DBB)
	assert.Equal(t, tc.Low, got.Low)
	assert.Equal(t, tc.High, got.High)
	assert.True(t, got.DropFrame())
}

func TestATCNormalisesDropFrame(t *testing.T) {
	// 00:01:00;00 does not exist in drop-frame and becomes ;02.
	p, err := NewATC(timecode.NewRP188(0, 1, 0, 0, true), timecode.Rate2997, ATCLTC, 9)
	require.NoError(t, err)
	got, typ, err := DecodeATC(p)
	require.NoError(t, err)
	assert.Equal(t, ATCLTC, typ)
	assert.Equal(t, "00:01:00;02", got.String())

	// Integral rates never carry the drop flag.
	p, err = NewATC(timecode.NewRP188(0, 1, 0, 0, true), timecode.Rate2500, ATCLTC, 9)
	require.NoError(t, err)
	got, _, _ = DecodeATC(p)
	assert.False(t, got.DropFrame())
	assert.Equal(t, "00:01:00:00", got.String())
}

func TestATCErrors(t *testing.T) {
	_, err := NewATC(timecode.InvalidRP188, timecode.Rate2500, ATCLTC, 9)
	assert.Error(t, err)
	_, err = NewATC(timecode.RP188{}, timecode.RateUnknown, ATCLTC, 9)
	assert.Error(t, err)
	_, _, err = DecodeATC(NewVPID(0, 10))
	assert.Error(t, err)
}

func TestVPID(t *testing.T) {
	p := NewVPID(0x89CA0001, 10)
	v, err := DecodeVPID(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x89CA0001), v)
}
