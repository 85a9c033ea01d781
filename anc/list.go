// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package anc

import (
	"sort"

	"github.com/pkg/errors"
)

// Coding is the buffer format a list was parsed from.
type Coding int

const (
	CodingNone Coding = iota
	CodingGUMP
	CodingRTP
)

func (c Coding) String() string {
	switch c {
	case CodingGUMP:
		return "GUMP"
	case CodingRTP:
		return "RTP"
	}
	return "none"
}

// List is an ordered collection of packets spanning both fields of a
// frame.
type List struct {
	packets []*Packet
}

// Add appends packets to the list.
func (l *List) Add(pkts ...*Packet) {
	l.packets = append(l.packets, pkts...)
}

// Len returns the number of packets.
func (l *List) Len() int {
	return len(l.packets)
}

// Packets returns the packets in list order.
func (l *List) Packets() []*Packet {
	return l.packets
}

// CountKind returns the number of packets of kind k.
func (l *List) CountKind(k Kind) int {
	n := 0
	for _, p := range l.packets {
		if p.Kind() == k {
			n++
		}
	}
	return n
}

// CountID returns the number of packets with the given identifiers.
func (l *List) CountID(did, sdid uint8) int {
	n := 0
	for _, p := range l.packets {
		if p.DID == did && p.SDID == sdid {
			n++
		}
	}
	return n
}

// Sort orders packets by line, then horizontal offset, data channel and
// identifiers.
func (l *List) Sort() {
	sort.SliceStable(l.packets, func(i, j int) bool {
		a, b := l.packets[i], l.packets[j]
		switch {
		case a.Location.Line != b.Location.Line:
			return a.Location.Line < b.Location.Line
		case a.Location.HorizOffset != b.Location.HorizOffset:
			return a.Location.HorizOffset < b.Location.HorizOffset
		case a.Location.Channel != b.Location.Channel:
			return a.Location.Channel < b.Location.Channel
		case a.DID != b.DID:
			return a.DID < b.DID
		}
		return a.SDID < b.SDID
	})
}

// Split divides the packets between field 1 and field 2. Packets on
// lines at or after f2Start go to field 2; an f2Start of 0 means the
// frame is progressive and everything stays in field 1.
func (l *List) Split(f2Start uint16) (f1, f2 []*Packet) {
	for _, p := range l.packets {
		if f2Start != 0 && p.Location.Line != LineAny && p.Location.Line >= f2Start {
			f2 = append(f2, p)
		} else {
			f1 = append(f1, p)
		}
	}
	return f1, f2
}

// ParseBuffers decodes the field 1 and field 2 buffers into one list.
// Each buffer may be GUMP, RTP or empty; the returned coding is that of
// the first non-empty buffer.
func ParseBuffers(f1, f2 []byte) (*List, Coding, error) {
	l := new(List)
	coding := CodingNone
	for n, buf := range [][]byte{f1, f2} {
		var (
			pkts []*Packet
			c    Coding
			err  error
		)
		switch {
		case IsRTP(buf):
			c = CodingRTP
			pkts, _, err = DecodeRTP(buf)
		case IsGUMP(buf):
			c = CodingGUMP
			pkts, err = DecodeGUMP(buf)
		default:
			continue
		}
		if err != nil {
			return l, coding, errors.Wrapf(err, "field %d", n+1)
		}
		if coding == CodingNone {
			coding = c
		}
		l.Add(pkts...)
	}
	return l, coding, nil
}

// WriteRTP encodes the list as one RTP packet per field into f1 and f2
// and zeroes the remainder of each buffer. For progressive frames
// (f2Start 0) f2 is left untouched.
func (l *List) WriteRTP(f1, f2 []byte, f2Start uint16, opts RTPOptions) (n1, n2 int, err error) {
	p1, p2 := l.Split(f2Start)
	field := FieldProgressive
	if f2Start != 0 {
		field = Field1
	}
	if n1, err = writeRTPField(f1, p1, field, opts); err != nil {
		return 0, 0, errors.Wrap(err, "field 1")
	}
	if f2Start == 0 {
		return n1, 0, nil
	}
	opts.SequenceNumber++
	if n2, err = writeRTPField(f2, p2, Field2, opts); err != nil {
		return n1, 0, errors.Wrap(err, "field 2")
	}
	return n1, n2, nil
}

func writeRTPField(dst []byte, pkts []*Packet, field Field, opts RTPOptions) (int, error) {
	b, err := EncodeRTP(pkts, field, opts)
	if err != nil {
		return 0, err
	}
	if len(b) > len(dst) {
		return 0, errors.Errorf("%d byte anc stream exceeds %d byte buffer", len(b), len(dst))
	}
	n := copy(dst, b)
	zero(dst[n:])
	return n, nil
}

// WriteGUMP encodes the list in GUMP format into f1 and f2 and zeroes
// the remainder of each buffer.
func (l *List) WriteGUMP(f1, f2 []byte, f2Start uint16) (n1, n2 int, err error) {
	p1, p2 := l.Split(f2Start)
	if n1, err = writeGUMPField(f1, p1); err != nil {
		return 0, 0, errors.Wrap(err, "field 1")
	}
	if n2, err = writeGUMPField(f2, p2); err != nil {
		return n1, 0, errors.Wrap(err, "field 2")
	}
	return n1, n2, nil
}

func writeGUMPField(dst []byte, pkts []*Packet) (int, error) {
	var b []byte
	for _, p := range pkts {
		var err error
		if b, err = AppendGUMP(b, p); err != nil {
			return 0, err
		}
	}
	if len(b) > len(dst) {
		return 0, errors.Errorf("%d bytes of GUMP packets exceed %d byte buffer", len(b), len(dst))
	}
	n := copy(dst, b)
	zero(dst[n:])
	return n, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
