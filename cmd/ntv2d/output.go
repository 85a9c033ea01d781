// Copyright 2018 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/TheCacophonyProject/autocirculate/headers"
)

const redialInterval = 5 * time.Second

type dialFunc func() (io.WriteCloser, error)

// frameOutput streams frames to the frame socket, sending the stream
// header first on each new connection. The socket is a stream: the
// header ends with a blank line and every frame that follows is
// exactly the header's frame size. Frames are dropped while no reader
// is connected.
type frameOutput struct {
	dial   dialFunc
	header *headers.HeaderInfo
	now    func() time.Time

	mu       sync.Mutex
	conn     io.WriteCloser
	lastDial time.Time
}

func newFrameOutput(dial dialFunc, header *headers.HeaderInfo) *frameOutput {
	return &frameOutput{
		dial:   dial,
		header: header,
		now:    time.Now,
	}
}

func unixDialer(path string, frameSize int) dialFunc {
	return func() (io.WriteCloser, error) {
		conn, err := connectToFrameOutput(path)
		if err != nil {
			return nil, err
		}
		conn.SetWriteBuffer(frameSize * 4)
		return conn, nil
	}
}

func connectToFrameOutput(path string) (*net.UnixConn, error) {
	return net.DialUnix("unix", nil, &net.UnixAddr{
		Net:  "unix",
		Name: path,
	})
}

// Write sends one frame. It reports whether the frame was delivered.
func (o *frameOutput) Write(frame []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.conn == nil && !o.connect() {
		return false
	}
	if _, err := o.conn.Write(frame); err != nil {
		log.Printf("frame output: %v", err)
		o.closeConn()
		return false
	}
	return true
}

// Streaming reports whether a reader is connected.
func (o *frameOutput) Streaming() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conn != nil
}

func (o *frameOutput) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeConn()
}

func (o *frameOutput) connect() bool {
	now := o.now()
	if !o.lastDial.IsZero() && now.Sub(o.lastDial) < redialInterval {
		return false
	}
	o.lastDial = now

	conn, err := o.dial()
	if err != nil {
		return false
	}
	if _, err := o.header.WriteTo(conn); err != nil {
		log.Printf("frame output: writing header: %v", err)
		conn.Close()
		return false
	}
	log.Print("frame output connected")
	o.conn = conn
	return true
}

func (o *frameOutput) closeConn() {
	if o.conn != nil {
		o.conn.Close()
		o.conn = nil
	}
}
