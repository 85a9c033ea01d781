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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/ntv2client"
)

const (
	dbusName = ntv2client.DbusName
	dbusPath = ntv2client.DbusPath

	statusTimeout = time.Second
)

var mu sync.Mutex

type ntv2dService struct {
	capturer *capturer
}

func startService() (*ntv2dService, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("name already taken")
	}
	s := &ntv2dService{}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return s, nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

func (s *ntv2dService) setCapturer(c *capturer) {
	mu.Lock()
	defer mu.Unlock()
	s.capturer = c
}

func (s *ntv2dService) removeCapturer() {
	mu.Lock()
	defer mu.Unlock()
	s.capturer = nil
}

// channelCapturer returns the capturer for the 1-based channel.
func (s *ntv2dService) channelCapturer(channel int32) (*capturer, error) {
	if s.capturer == nil {
		return nil, errors.New("no device available")
	}
	if driver.Channel(channel-1) != s.capturer.ch {
		return nil, fmt.Errorf("channel %d is not managed by ntv2d", channel)
	}
	return s.capturer, nil
}

func (s *ntv2dService) Start(channel int32) *dbus.Error {
	mu.Lock()
	defer mu.Unlock()
	c, err := s.channelCapturer(channel)
	if err != nil {
		return makeDbusError("Start", err)
	}
	c.setEnabled(true, false)
	return nil
}

func (s *ntv2dService) Stop(channel int32, abort bool) *dbus.Error {
	mu.Lock()
	defer mu.Unlock()
	c, err := s.channelCapturer(channel)
	if err != nil {
		return makeDbusError("Stop", err)
	}
	c.setEnabled(false, abort)
	return nil
}

func (s *ntv2dService) Status(channel int32) (ntv2client.ChannelStatus, *dbus.Error) {
	mu.Lock()
	defer mu.Unlock()
	c, err := s.channelCapturer(channel)
	if err != nil {
		return ntv2client.ChannelStatus{}, makeDbusError("Status", err)
	}
	st, err := c.status()
	if err != nil {
		return ntv2client.ChannelStatus{}, makeDbusError("Status", err)
	}
	return st, nil
}

func (s *ntv2dService) Channels() ([]ntv2client.ChannelStatus, *dbus.Error) {
	mu.Lock()
	defer mu.Unlock()
	if s.capturer == nil {
		return []ntv2client.ChannelStatus{}, nil
	}
	st, err := s.capturer.status()
	if err != nil {
		return nil, makeDbusError("Channels", err)
	}
	return []ntv2client.ChannelStatus{st}, nil
}

func (s *ntv2dService) Version() (string, *dbus.Error) {
	return version, nil
}

// status reads the channel's AutoCirculate status for the D-Bus API.
func (c *capturer) status() (ntv2client.ChannelStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	st, err := c.card.Status(ctx, c.ch)
	if err != nil {
		return ntv2client.ChannelStatus{}, err
	}
	return ntv2client.ChannelStatus{
		Channel:     int32(c.ch) + 1,
		Crosspoint:  st.Crosspoint.String(),
		State:       st.State.String(),
		StartFrame:  st.StartFrame,
		EndFrame:    st.EndFrame,
		ActiveFrame: st.ActiveFrame,
		Processed:   st.FramesProcessed,
		Dropped:     st.FramesDropped,
		BufferLevel: st.BufferLevel,
		Streaming:   c.output.Streaming(),
	}, nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}
