// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package anc

import "github.com/pkg/errors"

var errShortPayload = errors.New("RTP anc payload too short")

// bitWriter appends big-endian bit fields.
type bitWriter struct {
	buf  []byte
	nbit uint
}

func (w *bitWriter) write(v uint32, n uint) {
	for i := int(n) - 1; i >= 0; i-- {
		if w.nbit%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 != 0 {
			w.buf[len(w.buf)-1] |= 0x80 >> (w.nbit % 8)
		}
		w.nbit++
	}
}

// align pads with zero bits up to a 32 bit boundary.
func (w *bitWriter) align() {
	if r := w.nbit % 32; r != 0 {
		w.write(0, 32-r)
	}
}

type bitReader struct {
	buf []byte
	pos uint
}

func (r *bitReader) read(n uint) (uint32, error) {
	if r.pos+n > uint(len(r.buf))*8 {
		return 0, errShortPayload
	}
	var v uint32
	for i := uint(0); i < n; i++ {
		bit := r.buf[r.pos/8] >> (7 - r.pos%8) & 1
		v = v<<1 | uint32(bit)
		r.pos++
	}
	return v, nil
}

func (r *bitReader) align() {
	if rem := r.pos % 32; rem != 0 {
		r.pos += 32 - rem
	}
}

// word10 extends an 8 bit value to a SMPTE 291 10 bit word: b8 is
// even parity of b0-b7 and b9 is the inverse of b8.
func word10(v uint8) uint32 {
	p := uint32(0)
	for x := v; x != 0; x >>= 1 {
		p ^= uint32(x & 1)
	}
	return uint32(v) | p<<8 | (p^1)<<9
}

// checksum10 is the 9 bit sum of the DID, SDID, DC and user data
// words with b9 the inverse of b8.
func checksum10(words []uint32) uint32 {
	var sum uint32
	for _, w := range words {
		sum += w & 0x1FF
	}
	sum &= 0x1FF
	return sum | (^sum>>8&1)<<9
}
