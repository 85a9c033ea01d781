// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package anc encodes and decodes SMPTE 291 ancillary data packets in
// the two host buffer formats used by AutoCirculate: GUMP for SDI
// devices and RFC 8331 RTP for SMPTE 2110-40 devices.
package anc

import "fmt"

// DataChannel is the SDI data channel a packet is embedded in.
type DataChannel uint8

const (
	ChannelY DataChannel = iota
	ChannelC
)

// Space is the blanking region a packet is embedded in.
type Space uint8

const (
	SpaceVANC Space = iota
	SpaceHANC
)

const (
	// LineAny marks a packet without a specific line.
	LineAny uint16 = 0x7FF
	// HorizOffsetAny marks a packet without a specific horizontal
	// position.
	HorizOffsetAny uint16 = 0xFFF
)

// Location is where a packet sits in the raster.
type Location struct {
	Line        uint16
	HorizOffset uint16
	Channel     DataChannel
	Space       Space
	// Stream is the 1-based data stream number, or 0 when unknown.
	Stream uint8
}

// VANCLocation returns a luma VANC location on line.
func VANCLocation(line uint16) Location {
	return Location{Line: line, HorizOffset: HorizOffsetAny, Channel: ChannelY, Space: SpaceVANC}
}

// Packet is one ancillary data packet.
type Packet struct {
	DID      uint8
	SDID     uint8
	Location Location
	Payload  []byte
	// Analog packets carry digitized analog waveform samples.
	Analog bool
}

// Checksum returns the 8 bit checksum used by the GUMP format.
func (p *Packet) Checksum() uint8 {
	sum := p.DID + p.SDID + uint8(len(p.Payload))
	for _, b := range p.Payload {
		sum += b
	}
	return sum
}

// Kind classifies a packet by its identifiers.
type Kind int

const (
	KindUnknown Kind = iota
	KindATC
	KindVPID
	KindCEA708
	KindCEA608
	KindVITC
)

const (
	DIDATC   = 0x60
	SDIDATC  = 0x60
	DIDVPID  = 0x41
	SDIDVPID = 0x01
	DIDCEA   = 0x61
	SDID708  = 0x01
	SDID608  = 0x02
)

// Kind returns the kind of p.
func (p *Packet) Kind() Kind {
	if p.Analog {
		return KindVITC
	}
	switch {
	case p.DID == DIDATC && p.SDID == SDIDATC:
		return KindATC
	case p.DID == DIDVPID && p.SDID == SDIDVPID:
		return KindVPID
	case p.DID == DIDCEA && p.SDID == SDID708:
		return KindCEA708
	case p.DID == DIDCEA && p.SDID == SDID608:
		return KindCEA608
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindATC:
		return "ATC"
	case KindVPID:
		return "VPID"
	case KindCEA708:
		return "CEA708"
	case KindCEA608:
		return "CEA608"
	case KindVITC:
		return "VITC"
	}
	return "unknown"
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s DID=%02X SDID=%02X DC=%d line=%d", p.Kind(), p.DID, p.SDID, len(p.Payload), p.Location.Line)
}
