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

// Package headers reads and writes the YAML header that ntv2d sends
// ahead of the frames on its frame socket. The header ends with a
// blank line.
package headers

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"gopkg.in/yaml.v1"
)

// Header keys.
const (
	Device     = "device"
	Serial     = "serial"
	Channel    = "channel"
	FrameRate  = "frame-rate"
	Standard   = "standard"
	VideoBytes = "video-bytes"
	AudioBytes = "audio-bytes"
	AncBytes   = "anc-bytes"
)

// HeaderInfo describes the stream of one capture channel.
type HeaderInfo struct {
	device     string
	serial     string
	channel    int
	frameRate  string
	standard   string
	videoBytes int
	audioBytes int
	ancBytes   int
}

// New returns a header. channel is 1-based.
func New(device, serial string, channel int, frameRate, standard string, videoBytes, audioBytes, ancBytes int) *HeaderInfo {
	return &HeaderInfo{
		device:     device,
		serial:     serial,
		channel:    channel,
		frameRate:  frameRate,
		standard:   standard,
		videoBytes: videoBytes,
		audioBytes: audioBytes,
		ancBytes:   ancBytes,
	}
}

// Device returns the device name.
func (h *HeaderInfo) Device() string {
	return h.device
}

// Serial returns the device serial number.
func (h *HeaderInfo) Serial() string {
	return h.serial
}

// Channel returns the 1-based channel number.
func (h *HeaderInfo) Channel() int {
	return h.channel
}

func (h *HeaderInfo) FrameRate() string {
	return h.frameRate
}

func (h *HeaderInfo) Standard() string {
	return h.standard
}

// VideoBytes returns the number of video bytes in each frame.
func (h *HeaderInfo) VideoBytes() int {
	return h.videoBytes
}

// AudioBytes returns the maximum number of audio bytes in each frame.
func (h *HeaderInfo) AudioBytes() int {
	return h.audioBytes
}

// AncBytes returns the size of each field's anc buffer.
func (h *HeaderInfo) AncBytes() int {
	return h.ancBytes
}

// FrameSize returns the number of bytes in each frame message: video,
// audio and both anc fields.
func (h *HeaderInfo) FrameSize() int {
	return h.videoBytes + h.audioBytes + 2*h.ancBytes
}

// WriteTo writes the header followed by the terminating blank line.
func (h *HeaderInfo) WriteTo(w io.Writer) (int64, error) {
	out, err := yaml.Marshal(map[string]interface{}{
		Device:     h.device,
		Serial:     h.serial,
		Channel:    h.channel,
		FrameRate:  h.frameRate,
		Standard:   h.standard,
		VideoBytes: h.videoBytes,
		AudioBytes: h.audioBytes,
		AncBytes:   h.ancBytes,
	})
	if err != nil {
		return 0, err
	}
	out = append(out, '\n')
	n, err := w.Write(out)
	return int64(n), err
}

func ReadHeaderInfo(reader *bufio.Reader) (*HeaderInfo, error) {
	var buf bytes.Buffer
	for {
		line, err := reader.ReadString(byte('\n'))
		if err != nil {
			return nil, err
		}
		if strings.Trim(line, " ") == "\n" {
			break
		}
		buf.WriteString(line)
	}
	h := make(map[string]interface{})
	err := yaml.Unmarshal(buf.Bytes(), &h)
	if err != nil {
		return nil, err
	}

	return &HeaderInfo{
		device:     toStr(h[Device]),
		serial:     toStr(h[Serial]),
		channel:    toInt(h[Channel]),
		frameRate:  toStr(h[FrameRate]),
		standard:   toStr(h[Standard]),
		videoBytes: toInt(h[VideoBytes]),
		audioBytes: toInt(h[AudioBytes]),
		ancBytes:   toInt(h[AncBytes]),
	}, nil
}

func toInt(v interface{}) int {
	out, ok := v.(int)
	if !ok {
		return 0
	}
	return out
}

func toStr(v interface{}) string {
	out, ok := v.(string)
	if !ok {
		return ""
	}
	return out
}
