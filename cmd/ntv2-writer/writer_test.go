// ntv2d - stream frames from NTV2 video devices
//  Copyright (C) 2020, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

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

func TestHandleConnWritesHeaderAndFrames(t *testing.T) {
	dir, err := ioutil.TempDir("", "ntv2-writer")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	client, server := net.Pipe()
	h := headers.New("sim0", "SIM00001", 1, "30", "1080i", 8, 4, 2)

	go func() {
		h.WriteTo(client)
		for i := 0; i < 3; i++ {
			client.Write(bytes.Repeat([]byte{byte(i + 1)}, h.FrameSize()))
		}
		client.Close()
	}()

	err = handleConn(server, dir)
	assert.Equal(t, io.EOF, err)

	files, err := filepath.Glob(filepath.Join(dir, "*.ntv2raw"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()
	r := bufio.NewReader(f)
	got, err := headers.ReadHeaderInfo(r)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	frames, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	require.Len(t, frames, 3*h.FrameSize())
	assert.Equal(t, byte(1), frames[0])
	assert.Equal(t, byte(3), frames[len(frames)-1])
}

func TestHandleConnReframesStream(t *testing.T) {
	dir, err := ioutil.TempDir("", "ntv2-writer")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	h := headers.New("sim0", "SIM00001", 2, "25", "625", 6, 0, 1)
	var stream bytes.Buffer
	h.WriteTo(&stream)
	for i := 0; i < 4; i++ {
		stream.Write(bytes.Repeat([]byte{byte(i + 1)}, h.FrameSize()))
	}
	// A trailing partial frame.
	stream.Write([]byte{9, 9, 9})

	// Header and frames arrive in arbitrary chunks.
	client, server := net.Pipe()
	go func() {
		b := stream.Bytes()
		for len(b) > 0 {
			n := 5
			if n > len(b) {
				n = len(b)
			}
			client.Write(b[:n])
			b = b[n:]
		}
		client.Close()
	}()

	err = handleConn(server, dir)
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	files, err := filepath.Glob(filepath.Join(dir, "*.ntv2raw"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	raw, err := ioutil.ReadFile(files[0])
	require.NoError(t, err)
	r := bufio.NewReader(bytes.NewReader(raw))
	got, err := headers.ReadHeaderInfo(r)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	frames, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	require.Len(t, frames, 4*h.FrameSize())
	assert.Equal(t, byte(4), frames[len(frames)-1])
}

func TestFlushFrames(t *testing.T) {
	assert.Equal(t, 32, flushFrames(1024*1024))
	assert.Equal(t, 1, flushFrames(64*1024*1024))
	assert.Equal(t, 3, flushFrames(10*1024*1024))
}

func TestHandleConnRejectsBadHeader(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		client.Write([]byte("device: sim0\n\n"))
		client.Close()
	}()
	assert.Error(t, handleConn(server, os.TempDir()))
}

func TestNextFileName(t *testing.T) {
	ts := time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "/out/2020_03_04T05_06_07.ntv2raw", nextFileName("/out", ts))
}
