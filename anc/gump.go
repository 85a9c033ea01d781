// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package anc

import (
	"github.com/pkg/errors"
)

// GUMP packets start with this byte. A zero byte in its place ends the
// buffer.
const gumpStart = 0xFF

const (
	gumpLocationValid = 0x80
	gumpAnalog        = 0x40
	gumpLuma          = 0x20
	gumpHANC          = 0x10
)

// IsGUMP reports whether b starts with a GUMP packet.
func IsGUMP(b []byte) bool {
	return len(b) > 0 && b[0] == gumpStart
}

// DecodeGUMP parses the packets in a GUMP buffer. Parsing stops at the
// first zero byte or the end of b.
func DecodeGUMP(b []byte) ([]*Packet, error) {
	var pkts []*Packet
	for i := 0; i < len(b); {
		if b[i] == 0 {
			break
		}
		if b[i] != gumpStart {
			return pkts, errors.Errorf("bad GUMP start byte %02X at offset %d", b[i], i)
		}
		if i+6 > len(b) {
			return pkts, errors.Errorf("truncated GUMP header at offset %d", i)
		}
		hdr1, hdr2 := b[i+1], b[i+2]
		dc := int(b[i+5])
		end := i + 6 + dc
		if end >= len(b) {
			return pkts, errors.Errorf("truncated GUMP packet at offset %d", i)
		}
		p := &Packet{
			DID:     b[i+3],
			SDID:    b[i+4],
			Payload: append([]byte(nil), b[i+6:end]...),
		}
		if hdr1&gumpLocationValid != 0 {
			p.Analog = hdr1&gumpAnalog != 0
			p.Location = Location{
				Line:        uint16(hdr1&0x0F)<<7 | uint16(hdr2&0x7F),
				HorizOffset: HorizOffsetAny,
				Channel:     ChannelC,
				Space:       SpaceVANC,
			}
			if hdr1&gumpLuma != 0 {
				p.Location.Channel = ChannelY
			}
			if hdr1&gumpHANC != 0 {
				p.Location.Space = SpaceHANC
			}
		} else {
			p.Location = Location{Line: LineAny, HorizOffset: HorizOffsetAny}
		}
		if sum := b[end]; sum != p.Checksum() {
			return pkts, errors.Errorf("GUMP checksum mismatch for %s: got %02X, want %02X", p, sum, p.Checksum())
		}
		pkts = append(pkts, p)
		i = end + 1
	}
	return pkts, nil
}

// AppendGUMP appends the GUMP encoding of p to dst.
func AppendGUMP(dst []byte, p *Packet) ([]byte, error) {
	if len(p.Payload) > 255 {
		return dst, errors.Errorf("payload of %s too long for GUMP", p)
	}
	var hdr1, hdr2 byte
	if p.Location.Line != LineAny {
		hdr1 = gumpLocationValid | byte(p.Location.Line>>7)&0x0F
		hdr2 = byte(p.Location.Line) & 0x7F
		if p.Analog {
			hdr1 |= gumpAnalog
		}
		if p.Location.Channel == ChannelY {
			hdr1 |= gumpLuma
		}
		if p.Location.Space == SpaceHANC {
			hdr1 |= gumpHANC
		}
	}
	dst = append(dst, gumpStart, hdr1, hdr2, p.DID, p.SDID, byte(len(p.Payload)))
	dst = append(dst, p.Payload...)
	return append(dst, p.Checksum()), nil
}
