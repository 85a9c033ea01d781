// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package driver

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/TheCacophonyProject/autocirculate/timecode"
)

// Every message starts with a Header and ends with a Trailer so the
// driver can check the layout it was handed.
const (
	HeaderTag  uint32 = 0x4E545632 // "NTV2"
	TrailerTag uint32 = 0x5254524C // "RTRL"

	HeaderVersion  uint32 = 0
	TrailerVersion uint32 = 0

	// Pointers in messages are always carried as 64 bit values.
	PointerSize uint32 = 8
)

// MessageType identifies the body that follows a Header.
type MessageType uint32

const (
	TypeStatus     MessageType = 0x73746174 // "stat"
	TypeFrameStamp MessageType = 0x7374616D // "stam"
	TypeTransfer   MessageType = 0x78666572 // "xfer"
)

func (t MessageType) String() string {
	b := []byte{byte(t >> 24), byte(t >> 16), byte(t >> 8), byte(t)}
	return string(b)
}

// Header prefixes every structured message.
type Header struct {
	Tag           uint32
	Type          MessageType
	HeaderVersion uint32
	Version       uint32
	SizeInBytes   uint32
	PointerSize   uint32
	Operation     uint32
	ResultStatus  uint32
}

// Trailer terminates every structured message.
type Trailer struct {
	Version uint32
	Tag     uint32
}

func newHeader(t MessageType, size int) Header {
	return Header{
		Tag:           HeaderTag,
		Type:          t,
		HeaderVersion: HeaderVersion,
		SizeInBytes:   uint32(size),
		PointerSize:   PointerSize,
	}
}

func newTrailer() Trailer {
	return Trailer{Version: TrailerVersion, Tag: TrailerTag}
}

// Message is a structured driver message.
type Message interface {
	Type() MessageType
	Header() *Header
	Trailer() *Trailer
}

// ValidateMessage checks the header and trailer of msg.
func ValidateMessage(msg Message) error {
	h := msg.Header()
	if h.Tag != HeaderTag {
		return fmt.Errorf("bad header tag %08x", h.Tag)
	}
	if h.Type != msg.Type() {
		return fmt.Errorf("header type %s does not match %s message", h.Type, msg.Type())
	}
	if h.PointerSize != PointerSize {
		return fmt.Errorf("unsupported pointer size %d", h.PointerSize)
	}
	if t := msg.Trailer(); t.Tag != TrailerTag {
		return fmt.Errorf("bad trailer tag %08x", t.Tag)
	}
	return nil
}

// Status reports the AutoCirculate state of one crosspoint.
type Status struct {
	Hdr                   Header
	Crosspoint            Crosspoint
	State                 State
	StartFrame            int32
	EndFrame              int32
	ActiveFrame           int32
	_                     uint32
	RDTSCStartTime        uint64
	AudioClockStartTime   uint64
	RDTSCCurrentTime      uint64
	AudioClockCurrentTime uint64
	FramesProcessed       uint32
	FramesDropped         uint32
	BufferLevel           uint32
	Options               Options
	AudioSystem           AudioSystem
	NumAudioChannels      uint32
	Tlr                   Trailer
}

// NewStatus returns a status request for crosspoint x.
func NewStatus(x Crosspoint) *Status {
	s := &Status{Crosspoint: x, Tlr: newTrailer()}
	s.Hdr = newHeader(TypeStatus, binary.Size(s))
	return s
}

func (s *Status) Type() MessageType { return TypeStatus }
func (s *Status) Header() *Header { return &s.Hdr }
func (s *Status) Trailer() *Trailer { return &s.Tlr }

// IsStopped reports whether the crosspoint is not circulating.
func (s *Status) IsStopped() bool {
	return s.State == StateDisabled
}

// IsRunning reports whether frames are being circulated.
func (s *Status) IsRunning() bool {
	return s.State == StateRunning
}

// IsInput reports whether the status describes a capture crosspoint.
func (s *Status) IsInput() bool {
	return s.Crosspoint.IsInput()
}

// FrameCount returns the number of frames in the claimed range.
func (s *Status) FrameCount() uint32 {
	if s.IsStopped() || s.EndFrame < s.StartFrame {
		return 0
	}
	return uint32(s.EndFrame-s.StartFrame) + 1
}

// WithAudio reports whether audio is circulated.
func (s *Status) WithAudio() bool {
	return s.AudioSystem.Valid()
}

// HasAvailableInputFrame reports whether a captured frame is ready
// to transfer.
func (s *Status) HasAvailableInputFrame() bool {
	return s.IsInput() && s.BufferLevel > 1
}

// CanAcceptMoreOutputFrames reports whether a playout transfer would
// find a free frame.
func (s *Status) CanAcceptMoreOutputFrames() bool {
	return !s.IsInput() && s.BufferLevel+1 < s.FrameCount()
}

// FrameStamp is the per-frame metadata captured by the driver at the
// vertical interrupt.
type FrameStamp struct {
	Hdr            Header
	Channel        Channel
	RequestedFrame uint32

	// FrameTime is the host clock at the interrupt that began the frame.
	FrameTime int64
	// Frame counts frames circulated since start.
	Frame                 uint32
	_                     uint32
	AudioClockTimeStamp   uint64
	AudioExpectedAddress  uint32
	AudioInStartAddress   uint32
	AudioInStopAddress    uint32
	AudioOutStopAddress   uint32
	AudioOutStartAddress  uint32
	TotalBytesTransferred uint32
	StartSample           uint32
	_                     uint32
	Timecodes             timecode.Timecodes
	_                     uint32

	CurrentTime                 int64
	CurrentFrame                uint32
	_                           uint32
	CurrentFrameTime            int64
	AudioClockCurrentTime       uint64
	CurrentAudioExpectedAddress uint32
	CurrentAudioStartAddress    uint32
	CurrentFieldCount           uint32
	CurrentLineCount            uint32
	CurrentReps                 uint32
	_                           uint32
	CurrentUserCookie           uint64
	Tlr                         Trailer
}

// NewFrameStamp returns a frame stamp request for frame buffer
// frame of ch.
func NewFrameStamp(ch Channel, frame uint32) *FrameStamp {
	fs := &FrameStamp{
		Channel:        ch,
		RequestedFrame: frame,
		Timecodes:      timecode.NewTimecodes(),
		Tlr:            newTrailer(),
	}
	fs.Hdr = newHeader(TypeFrameStamp, binary.Size(fs))
	return fs
}

func (fs *FrameStamp) Type() MessageType { return TypeFrameStamp }
func (fs *FrameStamp) Header() *Header { return &fs.Hdr }
func (fs *FrameStamp) Trailer() *Trailer { return &fs.Tlr }

// Timecode returns the value of one timecode slot.
func (fs *FrameStamp) Timecode(idx timecode.Index) timecode.RP188 {
	if !idx.Valid() {
		return timecode.InvalidRP188
	}
	return fs.Timecodes[idx]
}

// TransferStatus is filled in by the driver when a transfer completes.
type TransferStatus struct {
	State            State
	TransferFrame    int32
	BufferLevel      uint32
	FramesProcessed  uint32
	FramesDropped    uint32
	AudioBufferSize  uint32
	AudioStartSample uint32
	AncByteCountF1   uint32
	AncByteCountF2   uint32
	VideoByteCount   uint32
	FrameStamp       FrameStamp
}

// Transfer moves one frame between host buffers and the device ring.
// Buffers are host memory; a nil buffer is not transferred.
type Transfer struct {
	Hdr             Header
	Crosspoint      Crosspoint
	Video           []byte
	Audio           []byte
	AncF1           []byte
	AncF2           []byte
	OutputTimecodes timecode.Timecodes
	Status          TransferStatus
	Tlr             Trailer
}

// NewTransfer returns a transfer message for crosspoint x.
func NewTransfer(x Crosspoint) *Transfer {
	t := &Transfer{
		Crosspoint:      x,
		OutputTimecodes: timecode.NewTimecodes(),
		Tlr:             newTrailer(),
	}
	t.Status.FrameStamp = *NewFrameStamp(x.Channel(), 0)
	t.Hdr = newHeader(TypeTransfer, transferFixedSize)
	return t
}

// transferFixedSize is the wire size of a transfer with every buffer
// carried as a 64 bit pointer plus a 32 bit length and padding.
var transferFixedSize = binary.Size(Header{}) + 8 + 4*16 +
	binary.Size(timecode.Timecodes{}) + binary.Size(TransferStatus{}) + binary.Size(Trailer{})

func (t *Transfer) Type() MessageType { return TypeTransfer }
func (t *Transfer) Header() *Header { return &t.Hdr }
func (t *Transfer) Trailer() *Trailer { return &t.Tlr }

// EncodeFixed writes a fixed-size message in little-endian wire order.
func EncodeFixed(msg Message) ([]byte, error) {
	if _, isTransfer := msg.(*Transfer); isTransfer {
		return nil, fmt.Errorf("transfer messages carry host buffers and have no fixed encoding")
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFixed reads a fixed-size message written by EncodeFixed.
func DecodeFixed(b []byte, msg Message) error {
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, msg); err != nil {
		return err
	}
	return ValidateMessage(msg)
}
