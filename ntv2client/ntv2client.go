// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package ntv2client talks to ntv2d over the system D-Bus.
package ntv2client

import "github.com/godbus/dbus"

const (
	DbusName   = "org.cacophony.ntv2d"
	DbusPath   = "/org/cacophony/ntv2d"
	methodBase = "org.cacophony.ntv2d"
)

// ChannelStatus is the status of one channel as reported by ntv2d.
// Channel is 1-based.
type ChannelStatus struct {
	Channel     int32
	Crosspoint  string
	State       string
	StartFrame  int32
	EndFrame    int32
	ActiveFrame int32
	Processed   uint32
	Dropped     uint32
	BufferLevel uint32
	Streaming   bool
}

// Running reports whether the channel is circulating frames.
func (s ChannelStatus) Running() bool {
	return s.State == "Running"
}

func getDbusObj() (dbus.BusObject, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(DbusName, DbusPath)
	return obj, nil
}

// Start asks ntv2d to start capturing on channel.
func Start(channel int) error {
	obj, err := getDbusObj()
	if err != nil {
		return err
	}
	return obj.Call(methodBase+".Start", 0, int32(channel)).Store()
}

// Stop asks ntv2d to stop channel. Abort skips the orderly stop.
func Stop(channel int, abort bool) error {
	obj, err := getDbusObj()
	if err != nil {
		return err
	}
	return obj.Call(methodBase+".Stop", 0, int32(channel), abort).Store()
}

func Status(channel int) (ChannelStatus, error) {
	var st ChannelStatus
	obj, err := getDbusObj()
	if err != nil {
		return st, err
	}
	err = obj.Call(methodBase+".Status", 0, int32(channel)).Store(&st)
	return st, err
}

// Channels returns the status of every channel ntv2d manages.
func Channels() ([]ChannelStatus, error) {
	obj, err := getDbusObj()
	if err != nil {
		return nil, err
	}
	var out []ChannelStatus
	err = obj.Call(methodBase+".Channels", 0).Store(&out)
	return out, err
}

// Version returns the ntv2d version string.
func Version() (string, error) {
	obj, err := getDbusObj()
	if err != nil {
		return "", err
	}
	var v string
	err = obj.Call(methodBase+".Version", 0).Store(&v)
	return v, err
}
