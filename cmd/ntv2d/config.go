// Copyright 2018 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/TheCacophonyProject/window"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/autocirculate/autocirculate"
	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/throttle"
)

type Config struct {
	Device         string           `yaml:"device"`
	DeviceIndex    int              `yaml:"device-index"`
	Channel        int              `yaml:"channel"`
	FrameCount     int              `yaml:"frame-count"`
	AudioSystem    int              `yaml:"audio-system"`
	WithAudio      bool             `yaml:"with-audio"`
	WithTimecode   bool             `yaml:"with-timecode"`
	WithAnc        bool             `yaml:"with-anc"`
	FrameOutput    string           `yaml:"frame-output"`
	OverlapPolicy  string           `yaml:"overlap-policy"`
	LockDir        string           `yaml:"lock-dir"`
	MetricsAddress string           `yaml:"metrics-address"`
	TallyPin       string           `yaml:"tally-pin"`
	WindowStart    string           `yaml:"window-start"`
	WindowEnd      string           `yaml:"window-end"`
	Latitude       float32          `yaml:"latitude"`
	Longitude      float32          `yaml:"longitude"`
	StopTimeout    time.Duration    `yaml:"stop-timeout"`
	DropEvents     throttle.Config  `yaml:"dropped-frame-events"`
}

var defaultConfig = Config{
	Device:        "sim",
	Channel:       1,
	FrameCount:    7,
	AudioSystem:   1,
	WithAudio:     true,
	WithTimecode:  true,
	FrameOutput:   "/var/run/ntv2-frames",
	OverlapPolicy: "warn",
	LockDir:       "/var/lock",
	StopTimeout:   time.Second,
	DropEvents:    throttle.DefaultConfig(),
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (conf *Config) Validate() error {
	if conf.Device == "" {
		return fmt.Errorf("device is required")
	}
	if conf.Channel < 1 || conf.Channel > 8 {
		return fmt.Errorf("channel must be between 1 and 8, got %d", conf.Channel)
	}
	if conf.FrameCount < 2 {
		return fmt.Errorf("frame-count must be at least 2, got %d", conf.FrameCount)
	}
	if conf.WithAudio && (conf.AudioSystem < 1 || conf.AudioSystem > 8) {
		return fmt.Errorf("audio-system must be between 1 and 8, got %d", conf.AudioSystem)
	}
	if _, err := autocirculate.ParseOverlapPolicy(conf.OverlapPolicy); err != nil {
		return err
	}
	if conf.StopTimeout <= 0 {
		return fmt.Errorf("stop-timeout must be positive")
	}
	if _, err := conf.Window(); err != nil {
		return err
	}
	return nil
}

// DriverChannel returns the configured channel as a 0-based driver channel.
func (conf *Config) DriverChannel() driver.Channel {
	return driver.Channel(conf.Channel - 1)
}

// InitParams returns the AutoCirculate init parameters for the channel.
func (conf *Config) InitParams() autocirculate.InitParams {
	p := autocirculate.InitParams{
		FrameCount:  conf.FrameCount,
		AudioSystem: driver.AudioSystemInvalid,
	}
	if conf.WithAudio {
		p.AudioSystem = driver.AudioSystem(conf.AudioSystem - 1)
	}
	if conf.WithTimecode {
		p.Options |= driver.WithRP188
	}
	if conf.WithAnc {
		p.Options |= driver.WithAnc
	}
	return p
}

// Window returns the daily window during which the channel captures.
// With neither end set the channel always captures.
func (conf *Config) Window() (*window.Window, error) {
	if conf.WindowStart == "" && conf.WindowEnd == "" {
		return &window.Window{NoWindow: true}, nil
	}
	return window.New(
		conf.WindowStart,
		conf.WindowEnd,
		float64(conf.Latitude),
		float64(conf.Longitude))
}
