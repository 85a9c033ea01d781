// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package anc

import (
	"github.com/pkg/errors"

	"github.com/TheCacophonyProject/autocirculate/timecode"
)

// ATCType is the payload type carried in DBB1 of an SMPTE 12-2
// ancillary timecode packet.
type ATCType uint8

const (
	ATCLTC   ATCType = 0x00
	ATCVITC1 ATCType = 0x01
	ATCVITC2 ATCType = 0x02
)

func (t ATCType) String() string {
	switch t {
	case ATCLTC:
		return "ATC-LTC"
	case ATCVITC1:
		return "ATC-VITC1"
	case ATCVITC2:
		return "ATC-VITC2"
	}
	return "ATC-other"
}

const atcDataCount = 16

// NewATC builds an ancillary timecode packet for tc. The time fields
// are recomputed through a frame count at rate so drop-frame labels are
// normalised, and DBB2 is taken from bits 8-15 of tc.DBB.
func NewATC(tc timecode.RP188, rate timecode.FrameRate, typ ATCType, line uint16) (*Packet, error) {
	if !tc.Valid() {
		return nil, errors.New("no timecode")
	}
	if !rate.Valid() {
		return nil, errors.Errorf("unknown frame rate %d", rate)
	}
	drop := tc.DropFrame() && timecode.DropFrameAllowed(rate)
	out := timecode.FromTimecode(tc.Timecode(rate), rate, drop)
	dbb1 := uint32(typ)
	dbb2 := (tc.DBB >> 8) & 0xFF

	payload := make([]byte, atcDataCount)
	for i := 0; i < 8; i++ {
		payload[i] = atcWord(out.Low>>(4*uint(i)), dbb1>>uint(i))
		payload[8+i] = atcWord(out.High>>(4*uint(i)), dbb2>>uint(i))
	}
	return &Packet{
		DID:      DIDATC,
		SDID:     SDIDATC,
		Location: VANCLocation(line),
		Payload:  payload,
	}, nil
}

func atcWord(nibble, dbbBit uint32) byte {
	return byte(nibble&0xF)<<4 | byte(dbbBit&1)<<3
}

// DecodeATC extracts the timecode and payload type from an ATC packet.
// The returned DBB holds DBB1 in bits 0-7 and DBB2 in bits 8-15.
func DecodeATC(p *Packet) (timecode.RP188, ATCType, error) {
	if p.Kind() != KindATC {
		return timecode.InvalidRP188, 0, errors.Errorf("%s is not an ATC packet", p)
	}
	if len(p.Payload) < atcDataCount {
		return timecode.InvalidRP188, 0, errors.Errorf("ATC payload has %d bytes, want %d", len(p.Payload), atcDataCount)
	}
	var tc timecode.RP188
	var dbb1, dbb2 uint32
	for i := 0; i < 8; i++ {
		lo, hi := p.Payload[i], p.Payload[8+i]
		tc.Low |= uint32(lo>>4) << (4 * uint(i))
		tc.High |= uint32(hi>>4) << (4 * uint(i))
		dbb1 |= uint32(lo>>3&1) << uint(i)
		dbb2 |= uint32(hi>>3&1) << uint(i)
	}
	tc.DBB = dbb1 | dbb2<<8
	return tc, ATCType(dbb1), nil
}

// NewVPID builds an SMPTE 352 payload identifier packet.
func NewVPID(vpid uint32, line uint16) *Packet {
	return &Packet{
		DID:      DIDVPID,
		SDID:     SDIDVPID,
		Location: VANCLocation(line),
		Payload:  []byte{byte(vpid >> 24), byte(vpid >> 16), byte(vpid >> 8), byte(vpid)},
	}
}

// DecodeVPID returns the 32 bit payload identifier of a VPID packet.
func DecodeVPID(p *Packet) (uint32, error) {
	if p.Kind() != KindVPID || len(p.Payload) < 4 {
		return 0, errors.Errorf("%s is not a VPID packet", p)
	}
	b := p.Payload
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}
