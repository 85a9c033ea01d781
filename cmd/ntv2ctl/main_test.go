// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/TheCacophonyProject/autocirculate/ntv2client"
)

func init() {
	color.NoColor = true
}

func TestPrintRunningStatus(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, ntv2client.ChannelStatus{
		Channel:     1,
		Crosspoint:  "Input Ch1",
		State:       "Running",
		StartFrame:  0,
		EndFrame:    6,
		ActiveFrame: 3,
		Processed:   120,
		Dropped:     2,
		BufferLevel: 2,
		Streaming:   true,
	})
	assert.Equal(t, `Ch1 Input Ch1: Running
  frames     0-6 (active 3)
  buffered   2
  processed  120
  dropped    2
  streaming
`, buf.String())
}

func TestPrintDisabledStatus(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, ntv2client.ChannelStatus{Channel: 2, Crosspoint: "Input Ch2", State: "Disabled"})
	assert.Equal(t, "Ch2 Input Ch2: Disabled\n", buf.String())
}

func TestRunWithoutCommand(t *testing.T) {
	assert.Equal(t, errNoCommand, run(Args{}))
}
