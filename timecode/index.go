// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package timecode

import "fmt"

// Index selects one timecode slot of a frame: the default slot, the
// per-SDI-connector VITC1/LTC/VITC2 slots and the analog LTC inputs.
type Index uint32

const (
	IndexDefault Index = iota
	IndexSDI1
	IndexSDI2
	IndexSDI3
	IndexSDI4
	IndexSDI1LTC
	IndexSDI2LTC
	IndexLTC1
	IndexLTC2
	IndexSDI5
	IndexSDI6
	IndexSDI7
	IndexSDI8
	IndexSDI3LTC
	IndexSDI4LTC
	IndexSDI5LTC
	IndexSDI6LTC
	IndexSDI7LTC
	IndexSDI8LTC
	IndexSDI1_2
	IndexSDI2_2
	IndexSDI3_2
	IndexSDI4_2
	IndexSDI5_2
	IndexSDI6_2
	IndexSDI7_2
	IndexSDI8_2

	NumIndexes = 27
)

var (
	vitc1Indexes = [8]Index{IndexSDI1, IndexSDI2, IndexSDI3, IndexSDI4, IndexSDI5, IndexSDI6, IndexSDI7, IndexSDI8}
	ltcIndexes   = [8]Index{IndexSDI1LTC, IndexSDI2LTC, IndexSDI3LTC, IndexSDI4LTC, IndexSDI5LTC, IndexSDI6LTC, IndexSDI7LTC, IndexSDI8LTC}
	vitc2Indexes = [8]Index{IndexSDI1_2, IndexSDI2_2, IndexSDI3_2, IndexSDI4_2, IndexSDI5_2, IndexSDI6_2, IndexSDI7_2, IndexSDI8_2}
)

// Valid reports whether i names a slot.
func (i Index) Valid() bool {
	return i < NumIndexes
}

// IsVITC1 is true for the field 1 embedded (VITC1) slots.
func (i Index) IsVITC1() bool {
	return indexIn(i, vitc1Indexes)
}

// IsVITC2 is true for the field 2 embedded (VITC2) slots.
func (i Index) IsVITC2() bool {
	return indexIn(i, vitc2Indexes)
}

// IsEmbeddedLTC is true for the SDI embedded LTC slots.
func (i Index) IsEmbeddedLTC() bool {
	return indexIn(i, ltcIndexes)
}

// IsAnalogLTC is true for the analog LTC input slots.
func (i Index) IsAnalogLTC() bool {
	return i == IndexLTC1 || i == IndexLTC2
}

func indexIn(i Index, set [8]Index) bool {
	for _, v := range set {
		if v == i {
			return true
		}
	}
	return false
}

// SDIIndexes returns the VITC1, embedded LTC and VITC2 slots of a
// 0-based SDI connector.
func SDIIndexes(connector int) []Index {
	if connector < 0 || connector >= 8 {
		return nil
	}
	return []Index{vitc1Indexes[connector], ltcIndexes[connector], vitc2Indexes[connector]}
}

// VITC1Index, LTCIndex and VITC2Index return single slots of a 0-based
// SDI connector. They return IndexDefault for out-of-range connectors.
func VITC1Index(connector int) Index { return pick(vitc1Indexes, connector) }
func LTCIndex(connector int) Index   { return pick(ltcIndexes, connector) }
func VITC2Index(connector int) Index { return pick(vitc2Indexes, connector) }

func pick(set [8]Index, connector int) Index {
	if connector < 0 || connector >= 8 {
		return IndexDefault
	}
	return set[connector]
}

func (i Index) String() string {
	switch {
	case i == IndexDefault:
		return "Default"
	case i.IsAnalogLTC():
		return fmt.Sprintf("LTC%d", i-IndexLTC1+1)
	case i.IsVITC1():
		return fmt.Sprintf("SDI%d", slot(i, vitc1Indexes)+1)
	case i.IsEmbeddedLTC():
		return fmt.Sprintf("SDI%d-LTC", slot(i, ltcIndexes)+1)
	case i.IsVITC2():
		return fmt.Sprintf("SDI%d-VITC2", slot(i, vitc2Indexes)+1)
	}
	return fmt.Sprintf("Index(%d)", uint32(i))
}

func slot(i Index, set [8]Index) int {
	for n, v := range set {
		if v == i {
			return n
		}
	}
	return -1
}

// Timecodes holds one value per slot.
type Timecodes [NumIndexes]RP188

// NewTimecodes returns a set with every slot invalid.
func NewTimecodes() Timecodes {
	var t Timecodes
	t.Invalidate()
	return t
}

// Invalidate marks every slot as carrying no timecode.
func (t *Timecodes) Invalidate() {
	for i := range t {
		t[i] = InvalidRP188
	}
}

// SetAll writes tc to the default slot and to every SDI VITC1 and LTC
// slot. VITC2 slots are written only when alsoF2 is set.
func (t *Timecodes) SetAll(tc RP188, alsoF2 bool) {
	t[IndexDefault] = tc
	for n := 0; n < 8; n++ {
		t[vitc1Indexes[n]] = tc
		t[ltcIndexes[n]] = tc
		if alsoF2 {
			t[vitc2Indexes[n]] = tc
		}
	}
}
