// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package autocirculate

import (
	"github.com/pkg/errors"

	"github.com/TheCacophonyProject/autocirculate/anc"
	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/timecode"
)

// Line carrying field 1 ATC packets when no VPID line applies.
const atcLineF1 = 9

const (
	streamLinkA = 1
	streamLinkB = 2
)

// ancFieldSizes returns the size of the field 1 and field 2 anc
// regions at the bottom of each frame buffer.
func (c *Card) ancFieldSizes() (f1, f2 uint32) {
	off1 := c.readVirtual(driver.VRegAncField1Offset)
	off2 := c.readVirtual(driver.VRegAncField2Offset)
	if off1 > off2 {
		return off1 - off2, off2
	}
	return off2 - off1, off2
}

// injectAnc returns copies of the caller's anc buffers with VPID and
// timecode packets added for an IP output. Packets the caller already
// supplied are left alone.
func (c *Card) injectAnc(ch driver.Channel, tcs timecode.Timecodes, f1, f2 []byte) ([]byte, []byte, error) {
	size1, size2 := c.ancFieldSizes()
	buf1 := ancBuffer(f1, size1)
	buf2 := ancBuffer(f2, size2)

	l, coding, err := anc.ParseBuffers(buf1, buf2)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse anc")
	}
	changed := coding == anc.CodingGUMP

	std, err := driver.ReadStandard(c.drv, ch)
	if err != nil {
		return nil, nil, driverErr("read standard", err)
	}
	rate, err := driver.ReadFrameRate(c.drv, ch)
	if err != nil {
		return nil, nil, driverErr("read frame rate", err)
	}
	progressive := std.Progressive()

	spigot := ch
	if c.taskMode() == driver.TaskModeStandard {
		spigot = driver.Channel3
	}

	if l.CountID(anc.DIDVPID, anc.SDIDVPID) == 0 {
		if c.addVPID(l, driver.SDIOutVPIDA(spigot), streamLinkA, std) {
			changed = true
		}
		if c.addVPID(l, driver.SDIOutVPIDB(spigot), streamLinkB, std) {
			changed = true
		}
	}

	if l.CountKind(anc.KindATC) == 0 && l.CountKind(anc.KindVITC) == 0 {
		for _, idx := range timecode.SDIIndexes(int(spigot)) {
			tc := tcs[idx]
			if !tc.Valid() {
				continue
			}
			typ, line := anc.ATCVITC1, uint16(atcLineF1)
			switch {
			case idx.IsVITC2():
				if progressive {
					continue
				}
				typ, line = anc.ATCVITC2, std.VPIDLine(true)-1
			case idx.IsEmbeddedLTC():
				typ = anc.ATCLTC
			}
			p, err := anc.NewATC(tc, rate, typ, line)
			if err != nil {
				c.logf("%s: cannot encode %s as %s: %v", ch, tc, typ, err)
				continue
			}
			l.Add(p)
			changed = true
		}
	}

	if !changed {
		return buf1, buf2, nil
	}
	l.Sort()
	var f2Start uint16
	if !progressive {
		f2Start = std.F2StartLine()
	}
	opts := anc.RTPOptions{
		SequenceNumber: c.nextRTPSequence(),
		SSRC:           uint32(ch) + 1,
	}
	if _, _, err := l.WriteRTP(buf1, buf2, f2Start, opts); err != nil {
		return nil, nil, errors.Wrap(err, "encode anc")
	}
	return buf1, buf2, nil
}

// addVPID adds the VPID held in reg to l, once per field.
func (c *Card) addVPID(l *anc.List, reg driver.Register, stream uint8, std driver.Standard) bool {
	v := c.readVirtual(reg)
	if v == 0 {
		return false
	}
	lines := []uint16{std.VPIDLine(false)}
	if !std.Progressive() {
		lines = append(lines, std.VPIDLine(true))
	}
	for _, line := range lines {
		p := anc.NewVPID(v, line)
		p.Location.Stream = stream
		l.Add(p)
	}
	return true
}

func ancBuffer(src []byte, size uint32) []byte {
	n := len(src)
	if n == 0 {
		n = int(size)
	}
	buf := make([]byte, n)
	copy(buf, src)
	return buf
}

// decodeCapturedAnc moves the timecode and VPID packets of a 2110
// capture into the transfer status and the SDI input VPID registers.
func (c *Card) decodeCapturedAnc(ch driver.Channel, st *driver.TransferStatus, f1, f2 []byte) {
	l, _, err := anc.ParseBuffers(limit(f1, st.AncByteCountF1), limit(f2, st.AncByteCountF2))
	if err != nil {
		c.logf("%s: cannot parse captured anc: %v", ch, err)
		return
	}

	var vpidA, vpidB uint32
	for _, p := range l.Packets() {
		switch p.Kind() {
		case anc.KindVPID:
			v, err := anc.DecodeVPID(p)
			if err != nil || len(p.Payload) != 4 {
				continue
			}
			if p.Location.Stream == streamLinkB {
				vpidB = v
			} else {
				vpidA = v
			}
		case anc.KindATC:
			tc, typ, err := anc.DecodeATC(p)
			if err != nil {
				c.logf("%s: bad ATC packet: %v", ch, err)
				continue
			}
			var idx timecode.Index
			switch typ {
			case anc.ATCVITC1:
				idx = timecode.VITC1Index(int(ch))
			case anc.ATCVITC2:
				idx = timecode.VITC2Index(int(ch))
			case anc.ATCLTC:
				idx = timecode.LTCIndex(int(ch))
			default:
				continue
			}
			st.FrameStamp.Timecodes[idx] = tc
		}
	}

	if vpidA != 0 {
		c.writeRegister(driver.SDIInVPIDA(ch), vpidA)
	}
	if vpidB != 0 {
		c.writeRegister(driver.SDIInVPIDB(ch), vpidB)
	}
}

func limit(b []byte, n uint32) []byte {
	if uint64(n) < uint64(len(b)) {
		return b[:n]
	}
	return b
}

func (c *Card) writeRegister(reg driver.Register, v uint32) {
	if err := c.drv.WriteRegister(reg, v, driver.MaskAll, 0); err != nil {
		c.logf("failed to write register %d: %v", reg, err)
	}
}
