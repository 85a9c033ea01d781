// Copyright 2018 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"fmt"
	"log"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// tally shows whether the channel is capturing.
type tally interface {
	Set(on bool)
}

type noTally struct{}

func (noTally) Set(bool) {}

// gpioTally drives a GPIO pin high while the channel is running.
type gpioTally struct {
	pin gpio.PinOut
	on  bool
}

func newTally(pinName string) (tally, error) {
	if pinName == "" {
		return noTally{}, nil
	}
	log.Print("host initialisation")
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("unknown tally pin %q", pinName)
	}
	t := &gpioTally{pin: pin, on: true}
	t.Set(false)
	return t, nil
}

func (t *gpioTally) Set(on bool) {
	if on == t.on {
		return
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := t.pin.Out(level); err != nil {
		log.Printf("failed to set tally pin %s: %v", level, err)
		return
	}
	t.on = on
}
