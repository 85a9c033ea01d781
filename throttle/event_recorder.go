// ntv2d - stream frames from NTV2 video devices
//  Copyright (C) 2018, The Cacophony Project
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

package throttle

import (
	"encoding/json"
	"log"
	"time"

	"github.com/godbus/dbus"

	"github.com/TheCacophonyProject/autocirculate/driver"
)

// DropEventType is the event type queued for dropped frames.
const DropEventType = "ntv2-dropped-frames"

// EventRecorder uses the event api to record that frames were dropped
// at a particular time.
type EventRecorder struct {
	Device string
}

func (er EventRecorder) WhenDropped(ch driver.Channel, frames uint32) {
	ts := time.Now()
	detailsJSON, err := dropEventDetails(er.Device, ch, frames)
	if err != nil {
		log.Printf("Could not record dropped-frame event: %s", err)
		return
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		log.Printf("Could not record dropped-frame event: %s", err)
		return
	}

	obj := conn.Object("org.cacophony.Events", "/org/cacophony/Events")
	call := obj.Call("org.cacophony.Events.Queue", 0, detailsJSON, ts.UnixNano())
	if call.Err != nil {
		log.Printf("Could not record dropped-frame event: %s", call.Err)
		return
	}
}

func dropEventDetails(device string, ch driver.Channel, frames uint32) ([]byte, error) {
	eventDetails := map[string]interface{}{
		"description": map[string]interface{}{
			"type": DropEventType,
			"details": map[string]interface{}{
				"device":  device,
				"channel": ch.String(),
				"frames":  frames,
			},
		},
	}
	return json.Marshal(&eventDetails)
}
