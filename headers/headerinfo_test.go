// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package headers

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRead(t *testing.T) {
	var buf bytes.Buffer
	in := New("sim0", "SIM00001", 1, "29.97", "1080i", 4096, 1024, 2048)
	_, err := in.WriteTo(&buf)
	require.NoError(t, err)
	buf.WriteString("frame data")

	r := bufio.NewReader(&buf)
	out, err := ReadHeaderInfo(r)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 4096+1024+2*2048, out.FrameSize())

	rest, _ := r.ReadString(0)
	assert.Equal(t, "frame data", rest)
}

func TestReadIgnoresUnknownAndMistypedKeys(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("device: card\nchannel: two\nbrand: aja\n\n"))
	h, err := ReadHeaderInfo(r)
	require.NoError(t, err)
	assert.Equal(t, "card", h.Device())
	assert.Equal(t, 0, h.Channel())
}

func TestReadTruncated(t *testing.T) {
	_, err := ReadHeaderInfo(bufio.NewReader(strings.NewReader("device: card\n")))
	assert.Error(t, err)
}
