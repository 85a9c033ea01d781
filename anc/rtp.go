// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package anc

import (
	"github.com/pion/rtp"
	"github.com/pkg/errors"
)

// Field is the RFC 8331 F field.
type Field uint8

const (
	FieldProgressive Field = 0x0
	Field1           Field = 0x2
	Field2           Field = 0x3
)

const (
	// PayloadType is the dynamic RTP payload type used for anc streams.
	PayloadType = 100

	rtpVersion      = 2
	payloadHdrBytes = 8
)

// IsRTP reports whether b starts with an RTP version 2 header.
func IsRTP(b []byte) bool {
	return len(b) >= 12 && b[0]>>6 == rtpVersion
}

// RTPOptions sets the RTP header fields of an encoded anc stream.
type RTPOptions struct {
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
}

// EncodeRTP encodes pkts as one RFC 8331 RTP packet for field.
func EncodeRTP(pkts []*Packet, field Field, opts RTPOptions) ([]byte, error) {
	if len(pkts) > 255 {
		return nil, errors.Errorf("%d anc packets exceed RTP ANC_Count", len(pkts))
	}
	w := new(bitWriter)
	for _, p := range pkts {
		if len(p.Payload) > 255 {
			return nil, errors.Errorf("payload of %s too long", p)
		}
		loc := p.Location
		var c, s uint32
		if loc.Channel == ChannelC {
			c = 1
		}
		if loc.Stream != 0 {
			s = 1
		}
		w.write(c, 1)
		w.write(uint32(loc.Line)&0x7FF, 11)
		w.write(uint32(loc.HorizOffset)&0xFFF, 12)
		w.write(s, 1)
		w.write(uint32(loc.Stream)&0x7F, 7)

		words := make([]uint32, 0, 3+len(p.Payload))
		words = append(words, word10(p.DID), word10(p.SDID), word10(uint8(len(p.Payload))))
		for _, b := range p.Payload {
			words = append(words, word10(b))
		}
		for _, word := range words {
			w.write(word, 10)
		}
		w.write(checksum10(words), 10)
		w.align()
	}

	payload := make([]byte, payloadHdrBytes, payloadHdrBytes+len(w.buf))
	payload[2] = byte(len(w.buf) >> 8)
	payload[3] = byte(len(w.buf))
	payload[4] = byte(len(pkts))
	payload[5] = byte(field) << 6
	payload = append(payload, w.buf...)

	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			Marker:         true,
			PayloadType:    PayloadType,
			SequenceNumber: opts.SequenceNumber,
			Timestamp:      opts.Timestamp,
			SSRC:           opts.SSRC,
		},
		Payload: payload,
	}
	return pkt.Marshal()
}

// DecodeRTP parses the first RFC 8331 RTP packet in b. Bytes after the
// declared anc length are ignored.
func DecodeRTP(b []byte) ([]*Packet, Field, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(b); err != nil {
		return nil, 0, errors.Wrap(err, "bad RTP header")
	}
	if len(pkt.Payload) < payloadHdrBytes {
		return nil, 0, errShortPayload
	}
	length := int(pkt.Payload[2])<<8 | int(pkt.Payload[3])
	count := int(pkt.Payload[4])
	field := Field(pkt.Payload[5] >> 6)
	if payloadHdrBytes+length > len(pkt.Payload) {
		return nil, field, errShortPayload
	}

	r := &bitReader{buf: pkt.Payload[payloadHdrBytes : payloadHdrBytes+length]}
	pkts := make([]*Packet, 0, count)
	for n := 0; n < count; n++ {
		p, err := readRTPPacket(r)
		if err != nil {
			return pkts, field, errors.Wrapf(err, "anc packet %d", n)
		}
		pkts = append(pkts, p)
	}
	return pkts, field, nil
}

func readRTPPacket(r *bitReader) (*Packet, error) {
	var fields [5]uint32
	for i, n := range []uint{1, 11, 12, 1, 7} {
		v, err := r.read(n)
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	p := &Packet{
		Location: Location{
			Line:        uint16(fields[1]),
			HorizOffset: uint16(fields[2]),
			Channel:     ChannelY,
			Space:       SpaceVANC,
		},
	}
	if fields[0] == 1 {
		p.Location.Channel = ChannelC
	}
	if fields[3] == 1 {
		p.Location.Stream = uint8(fields[4])
	}

	words := make([]uint32, 3)
	for i := range words {
		v, err := r.read(10)
		if err != nil {
			return nil, err
		}
		words[i] = v
	}
	p.DID, p.SDID = uint8(words[0]), uint8(words[1])
	dc := int(uint8(words[2]))
	p.Payload = make([]byte, dc)
	for i := 0; i < dc; i++ {
		v, err := r.read(10)
		if err != nil {
			return nil, err
		}
		words = append(words, v)
		p.Payload[i] = uint8(v)
	}
	sum, err := r.read(10)
	if err != nil {
		return nil, err
	}
	if want := checksum10(words); sum != want {
		return nil, errors.Errorf("checksum mismatch for %s: got %03X, want %03X", p, sum, want)
	}
	r.align()
	return p, nil
}
