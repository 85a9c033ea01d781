// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package driver

import (
	"github.com/TheCacophonyProject/autocirculate/timecode"
)

// Register is a device register number. Numbers at or above
// VirtualRegisterBase are driver-held virtual registers.
type Register uint32

const (
	RegGlobalControl  Register = 0
	RegCh1Control     Register = 1
	RegCh2Control     Register = 5
	RegCh3Control     Register = 257
	RegCh4Control     Register = 261
	RegGlobalControl2 Register = 267
	RegGlobalCh2      Register = 377
	RegGlobalCh3      Register = 378
	RegGlobalCh4      Register = 379
	RegGlobalCh5      Register = 380
	RegGlobalCh6      Register = 381
	RegGlobalCh7      Register = 382
	RegGlobalCh8      Register = 383
	RegCh5Control     Register = 384
	RegCh6Control     Register = 388
	RegCh7Control     Register = 392
	RegCh8Control     Register = 396
	RegSDIOut1VPIDA   Register = 480
	RegSDIIn1VPIDA    Register = 496

	VirtualRegisterBase Register = 10000

	VRegInputSelect              = VirtualRegisterBase + 11
	VRegRP188SourceSelect        = VirtualRegisterBase + 12
	VRegEveryFrameTaskFilter     = VirtualRegisterBase + 13
	VRegZeroHostAncPostCapture   = VirtualRegisterBase + 14
	VRegZeroDeviceAncPostCapture = VirtualRegisterBase + 15
	VRegAncField1Offset          = VirtualRegisterBase + 16
	VRegAncField2Offset          = VirtualRegisterBase + 17
)

const (
	MaskMode  = 0x1
	ShiftMode = 0

	// Set when the channel's frame store is disabled.
	MaskFrameStoreDisable  = 1 << 7
	ShiftFrameStoreDisable = 7

	MaskFrameRate      = 0x7
	ShiftFrameRate     = 0
	MaskFrameRateHigh  = 1 << 22
	ShiftFrameRateHigh = 22

	MaskStandard  = 0x780
	ShiftStandard = 7

	// Quad-frame mode for Ch1-4 and Ch5-8 respectively.
	MaskQuadMode   = 1 << 3
	ShiftQuadMode  = 3
	MaskQuadMode2  = 1 << 12
	ShiftQuadMode2 = 12

	MaskAll = 0xFFFFFFFF
)

var (
	channelControlRegs = [MaxChannels]Register{
		RegCh1Control, RegCh2Control, RegCh3Control, RegCh4Control,
		RegCh5Control, RegCh6Control, RegCh7Control, RegCh8Control,
	}
	globalControlRegs = [MaxChannels]Register{
		RegGlobalControl, RegGlobalCh2, RegGlobalCh3, RegGlobalCh4,
		RegGlobalCh5, RegGlobalCh6, RegGlobalCh7, RegGlobalCh8,
	}
)

// ChannelControl returns the control register of ch.
func ChannelControl(ch Channel) Register {
	return channelControlRegs[ch%MaxChannels]
}

// OutputFrame returns the register holding the frame ch plays out.
func OutputFrame(ch Channel) Register {
	return ChannelControl(ch) + 2
}

// InputFrame returns the register holding the frame ch captures into.
func InputFrame(ch Channel) Register {
	return ChannelControl(ch) + 3
}

// GlobalControl returns the format register of ch.
func GlobalControl(ch Channel) Register {
	return globalControlRegs[ch%MaxChannels]
}

// SDIOutVPIDA returns the link A VPID register of an SDI output.
func SDIOutVPIDA(ch Channel) Register {
	return RegSDIOut1VPIDA + 2*Register(ch%MaxChannels)
}

// SDIOutVPIDB returns the link B VPID register of an SDI output.
func SDIOutVPIDB(ch Channel) Register {
	return SDIOutVPIDA(ch) + 1
}

// SDIInVPIDA returns the link A VPID register of an SDI input.
func SDIInVPIDA(ch Channel) Register {
	return RegSDIIn1VPIDA + 2*Register(ch%MaxChannels)
}

// SDIInVPIDB returns the link B VPID register of an SDI input.
func SDIInVPIDB(ch Channel) Register {
	return SDIInVPIDA(ch) + 1
}

// RegisterReader is the part of Driver needed by the register
// helpers below.
type RegisterReader interface {
	ReadRegister(reg Register, mask, shift uint32) (uint32, error)
}

// RegisterWriter is the writing counterpart of RegisterReader.
type RegisterWriter interface {
	WriteRegister(reg Register, value, mask, shift uint32) error
}

// ReadMode returns the configured direction of ch.
func ReadMode(d RegisterReader, ch Channel) (Mode, error) {
	v, err := d.ReadRegister(ChannelControl(ch), MaskMode, ShiftMode)
	return Mode(v), err
}

// WriteMode configures the direction of ch.
func WriteMode(d RegisterWriter, ch Channel, mode Mode) error {
	return d.WriteRegister(ChannelControl(ch), uint32(mode), MaskMode, ShiftMode)
}

// ReadFrameRate returns the frame rate configured for ch.
func ReadFrameRate(d RegisterReader, ch Channel) (timecode.FrameRate, error) {
	lo, err := d.ReadRegister(GlobalControl(ch), MaskFrameRate, ShiftFrameRate)
	if err != nil {
		return timecode.RateUnknown, err
	}
	hi, err := d.ReadRegister(GlobalControl(ch), MaskFrameRateHigh, ShiftFrameRateHigh)
	if err != nil {
		return timecode.RateUnknown, err
	}
	return timecode.FrameRate(lo | hi<<3), nil
}

// WriteFrameRate configures the frame rate of ch.
func WriteFrameRate(d RegisterWriter, ch Channel, rate timecode.FrameRate) error {
	if err := d.WriteRegister(GlobalControl(ch), uint32(rate)&0x7, MaskFrameRate, ShiftFrameRate); err != nil {
		return err
	}
	return d.WriteRegister(GlobalControl(ch), uint32(rate)>>3, MaskFrameRateHigh, ShiftFrameRateHigh)
}

// ReadStandard returns the video standard configured for ch.
func ReadStandard(d RegisterReader, ch Channel) (Standard, error) {
	v, err := d.ReadRegister(GlobalControl(ch), MaskStandard, ShiftStandard)
	return Standard(v), err
}

// WriteStandard configures the video standard of ch.
func WriteStandard(d RegisterWriter, ch Channel, std Standard) error {
	return d.WriteRegister(GlobalControl(ch), uint32(std), MaskStandard, ShiftStandard)
}

// ReadQuadMode reports whether quad-frame mode is enabled for the
// group of channels that ch belongs to.
func ReadQuadMode(d RegisterReader, ch Channel) (bool, error) {
	mask, shift := uint32(MaskQuadMode), uint32(ShiftQuadMode)
	if ch >= Channel5 {
		mask, shift = MaskQuadMode2, ShiftQuadMode2
	}
	v, err := d.ReadRegister(RegGlobalControl2, mask, shift)
	return v != 0, err
}

// WriteQuadMode enables or disables quad-frame mode for ch's group.
func WriteQuadMode(d RegisterWriter, ch Channel, enable bool) error {
	mask, shift := uint32(MaskQuadMode), uint32(ShiftQuadMode)
	if ch >= Channel5 {
		mask, shift = MaskQuadMode2, ShiftQuadMode2
	}
	var v uint32
	if enable {
		v = 1
	}
	return d.WriteRegister(RegGlobalControl2, v, mask, shift)
}

// ReadFrameStoreEnabled reports whether the frame store of ch is
// reading or writing device memory.
func ReadFrameStoreEnabled(d RegisterReader, ch Channel) (bool, error) {
	v, err := d.ReadRegister(ChannelControl(ch), MaskFrameStoreDisable, ShiftFrameStoreDisable)
	return v == 0, err
}

// WriteFrameStoreEnabled enables or disables the frame store of ch.
func WriteFrameStoreEnabled(d RegisterWriter, ch Channel, enable bool) error {
	var v uint32
	if !enable {
		v = 1
	}
	return d.WriteRegister(ChannelControl(ch), v, MaskFrameStoreDisable, ShiftFrameStoreDisable)
}

// ReadFrameStoreFrame returns the frame the frame store of ch is
// currently using in its configured direction.
func ReadFrameStoreFrame(d RegisterReader, ch Channel) (uint32, error) {
	mode, err := ReadMode(d, ch)
	if err != nil {
		return 0, err
	}
	reg := OutputFrame(ch)
	if mode == ModeCapture {
		reg = InputFrame(ch)
	}
	return d.ReadRegister(reg, MaskAll, 0)
}

// ReadVirtual reads a whole virtual register.
func ReadVirtual(d RegisterReader, reg Register) (uint32, error) {
	return d.ReadRegister(reg, MaskAll, 0)
}
