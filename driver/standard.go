// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package driver

// Standard is a video raster standard.
type Standard uint32

const (
	Standard1080 Standard = iota
	Standard720
	Standard525
	Standard625
	Standard1080p
	Standard2K
	Standard2Kx1080p
	Standard2Kx1080i
	Standard3840x2160p
	Standard4096x2160p
	StandardInvalid
)

type standardInfo struct {
	name        string
	progressive bool
	f2Start     uint16
	vpidF1      uint16
	vpidF2      uint16
}

var standards = [StandardInvalid]standardInfo{
	Standard1080:       {"1080i", false, 564, 10, 572},
	Standard720:        {"720p", true, 0, 10, 0},
	Standard525:        {"525i", false, 264, 13, 276},
	Standard625:        {"625i", false, 313, 9, 322},
	Standard1080p:      {"1080p", true, 0, 10, 0},
	Standard2K:         {"2K", true, 0, 10, 0},
	Standard2Kx1080p:   {"2Kx1080p", true, 0, 10, 0},
	Standard2Kx1080i:   {"2Kx1080i", false, 564, 10, 572},
	Standard3840x2160p: {"3840x2160p", true, 0, 10, 0},
	Standard4096x2160p: {"4096x2160p", true, 0, 10, 0},
}

// Valid reports whether s is a known standard.
func (s Standard) Valid() bool {
	return s < StandardInvalid
}

// Progressive is true for progressive (single field) standards.
func (s Standard) Progressive() bool {
	return s.Valid() && standards[s].progressive
}

// F2StartLine returns the first SMPTE line number of field 2, or 0
// for progressive standards.
func (s Standard) F2StartLine() uint16 {
	if !s.Valid() {
		return 0
	}
	return standards[s].f2Start
}

// VPIDLine returns the SMPTE line carrying the VPID packet in the
// given field.
func (s Standard) VPIDLine(field2 bool) uint16 {
	if !s.Valid() {
		return 0
	}
	if field2 {
		return standards[s].vpidF2
	}
	return standards[s].vpidF1
}

func (s Standard) String() string {
	if !s.Valid() {
		return "invalid"
	}
	return standards[s].name
}
