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
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/TheCacophonyProject/autocirculate/headers"
)

const (
	inFlight = 32

	// Raw files are flushed in whole frames, about this many bytes at a time.
	flushBytes = 32 * 1024 * 1024

	frameLogInterval = 60 * 5
)

// handleConn writes the header and frames read from conn to a new raw
// file in outDir until the connection ends. The stream carries the
// header up to its blank line, then frames of the header's frame size.
func handleConn(conn io.Reader, outDir string) error {
	reader := bufio.NewReader(conn)
	header, err := headers.ReadHeaderInfo(reader)
	if err != nil {
		return err
	}
	if header.FrameSize() <= 0 {
		return fmt.Errorf("bad frame size %d", header.FrameSize())
	}

	log.Printf("connection from %s %s channel %d (%s@%s)",
		header.Device(), header.Serial(), header.Channel(), header.Standard(), header.FrameRate())

	f, err := newRawFile(nextFileName(outDir, time.Now()), header.FrameSize())
	if err != nil {
		return err
	}
	if _, err := header.WriteTo(f); err != nil {
		f.Close()
		return err
	}

	writeFrames := make(chan []byte, inFlight)
	spentFrames := make(chan []byte, inFlight)
	for i := 0; i < inFlight; i++ {
		spentFrames <- make([]byte, header.FrameSize())
	}
	writeDone := make(chan error, 1)
	go func() {
		writeDone <- writer(writeFrames, f, spentFrames)
	}()

	log.Print("reading frames")
	totalFrames := 0
	for {
		frame := <-spentFrames
		if _, err = io.ReadFull(reader, frame); err != nil {
			break
		}
		totalFrames++
		if totalFrames%frameLogInterval == 0 {
			log.Printf("%d frames for this connection", totalFrames)
		}
		writeFrames <- frame
	}
	close(writeFrames)
	if werr := <-writeDone; werr != nil {
		return werr
	}
	log.Printf("%d frames written", totalFrames)
	if err == io.ErrUnexpectedEOF {
		log.Print("dropped partial frame at end of stream")
	}
	return err
}

func writer(inFrames <-chan []byte, f io.WriteCloser, outFrames chan<- []byte) error {
	var err error
	for frame := range inFrames {
		if err == nil {
			_, err = f.Write(frame)
		}
		outFrames <- frame
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// rawFile is a raw output file with a write buffer sized in whole
// frames.
type rawFile struct {
	f *os.File
	w *bufio.Writer
}

func newRawFile(filename string, frameSize int) (*rawFile, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &rawFile{
		f: f,
		w: bufio.NewWriterSize(f, flushFrames(frameSize)*frameSize),
	}, nil
}

// flushFrames returns how many frames are buffered between flushes.
func flushFrames(frameSize int) int {
	if n := flushBytes / frameSize; n > 1 {
		return n
	}
	return 1
}

func (rf *rawFile) Write(p []byte) (int, error) {
	return rf.w.Write(p)
}

func (rf *rawFile) Close() error {
	if err := rf.w.Flush(); err != nil {
		rf.f.Close()
		return err
	}
	return rf.f.Close()
}

func nextFileName(outDir string, t time.Time) string {
	name := fmt.Sprintf("%s.ntv2raw", t.Format("2006_01_02T15_04_05"))
	return filepath.Join(outDir, name)
}
