// Copyright 2018 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"bufio"
	"bytes"
	"io"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/autocirculate/headers"
)

func TestLargeFramesOverUnixSocket(t *testing.T) {
	dir, err := ioutil.TempDir("", "ntv2d")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "frames")

	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer listener.Close()

	// Well past the size a single seqpacket message may carry.
	h := headers.New("sim0", "SIM00001", 1, "29.97", "1080i", 4<<20, 8192, 2048)
	out := newFrameOutput(unixDialer(path, h.FrameSize()), h)
	defer out.Close()

	type result struct {
		header *headers.HeaderInfo
		frames [][]byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		defer func() { done <- res }()
		conn, err := listener.Accept()
		if err != nil {
			res.err = err
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		if res.header, res.err = headers.ReadHeaderInfo(r); res.err != nil {
			return
		}
		for i := 0; i < 2; i++ {
			frame := make([]byte, res.header.FrameSize())
			if _, res.err = io.ReadFull(r, frame); res.err != nil {
				return
			}
			res.frames = append(res.frames, frame)
		}
	}()

	for i := 0; i < 2; i++ {
		require.True(t, out.Write(bytes.Repeat([]byte{byte(i + 1)}, h.FrameSize())))
	}
	assert.True(t, out.Streaming())

	var res result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("reader did not finish")
	}
	require.NoError(t, res.err)
	assert.Equal(t, h, res.header)
	require.Len(t, res.frames, 2)
	assert.Equal(t, byte(1), res.frames[0][h.FrameSize()-1])
	assert.Equal(t, byte(2), res.frames[1][0])
}

func TestFrameOutputRedialInterval(t *testing.T) {
	dials := 0
	h := headers.New("sim0", "SIM00001", 1, "30", "1080i", 4, 0, 0)
	out := newFrameOutput(func() (io.WriteCloser, error) {
		dials++
		return nil, os.ErrNotExist
	}, h)
	now := time.Unix(1000, 0)
	out.now = func() time.Time { return now }

	assert.False(t, out.Write(make([]byte, 4)))
	assert.False(t, out.Write(make([]byte, 4)))
	assert.Equal(t, 1, dials)

	now = now.Add(redialInterval)
	assert.False(t, out.Write(make([]byte, 4)))
	assert.Equal(t, 2, dials)
	assert.False(t, out.Streaming())
}
