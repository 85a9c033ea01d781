// Copyright 2018 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TheCacophonyProject/autocirculate/autocirculate"
	"github.com/TheCacophonyProject/autocirculate/driver"
	"github.com/TheCacophonyProject/autocirculate/driver/sim"
	"github.com/TheCacophonyProject/autocirculate/lockfile"
	"github.com/TheCacophonyProject/autocirculate/metrics"
	"github.com/TheCacophonyProject/autocirculate/throttle"
)

const reopenDelay = 5 * time.Second

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
	Simulate   bool   `arg:"-s,--simulate" help:"capture from a simulated device"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/ntv2d.yaml"
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("version: %s", version)
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	if args.Simulate {
		conf.Device = sim.DriverName
	}
	logConfig(conf)

	tl, err := newTally(conf.TallyPin)
	if err != nil {
		return err
	}

	service, err := startService()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	daemon.SdNotify(false, "READY=1")
	for {
		err := runDevice(ctx, conf, service, tl)
		if ctx.Err() != nil {
			log.Print("shutting down")
			return nil
		}
		if err != nil {
			if _, isTransferErr := err.(*transferErr); !isTransferErr {
				return err
			}
			log.Printf("capture error: %v", err)
		}
		log.Printf("reopening device in %s", reopenDelay)
		sleep(ctx, reopenDelay)
	}
}

func runDevice(ctx context.Context, conf *Config, service *ntv2dService, tl tally) error {
	deviceName := fmt.Sprintf("%s%d", conf.Device, conf.DeviceIndex)
	policy, err := autocirculate.ParseOverlapPolicy(conf.OverlapPolicy)
	if err != nil {
		return err
	}

	log.Printf("opening %s", deviceName)
	card, err := autocirculate.OpenDevice(conf.Device, conf.DeviceIndex,
		autocirculate.WithLogFunc(func(s string) { log.Print(s) }),
		autocirculate.WithOverlapPolicy(policy),
		autocirculate.WithStopWait(conf.StopTimeout),
		autocirculate.WithAllocationLock(lockfile.New(lockfile.Path(conf.LockDir, deviceName))),
	)
	if err != nil {
		return err
	}
	defer card.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if simDevice, ok := card.Driver().(*sim.Device); ok {
		rate, err := driver.ReadFrameRate(simDevice, conf.DriverChannel())
		if err != nil {
			return err
		}
		go simDevice.Run(ctx, time.Duration(rate.FrameDurationNanos()))
	}

	if conf.MetricsAddress != "" {
		srv := serveMetrics(conf.MetricsAddress, card, conf.DriverChannel())
		defer srv.Close()
	}

	w, err := conf.Window()
	if err != nil {
		return err
	}

	info := card.Info()
	c, err := newCapturer(captureConfig{
		card:     card,
		ch:       conf.DriverChannel(),
		params:   conf.InitParams(),
		window:   w,
		dial:     unixDialer(conf.FrameOutput, int(info.FrameBufferBytes)),
		tally:    tl,
		drops:    throttle.NewDropReporter(conf.DropEvents, throttle.EventRecorder{Device: info.Name}),
		watchdog: func() { daemon.SdNotify(false, "WATCHDOG=1") },
	})
	if err != nil {
		return err
	}
	service.setCapturer(c)
	defer service.removeCapturer()

	return c.run(ctx)
}

func serveMetrics(addr string, card *autocirculate.Card, ch driver.Channel) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(card, []driver.Channel{ch}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()
	log.Printf("serving metrics on %s", addr)
	return srv
}

func logConfig(conf *Config) {
	log.Printf("device: %s%d", conf.Device, conf.DeviceIndex)
	log.Printf("channel: %d", conf.Channel)
	log.Printf("frame count: %d", conf.FrameCount)
	if conf.WithAudio {
		log.Printf("audio system: %d", conf.AudioSystem)
	} else {
		log.Print("audio: off")
	}
	log.Printf("frame output: %s", conf.FrameOutput)
	if conf.TallyPin != "" {
		log.Printf("tally pin: %s", conf.TallyPin)
	}
	if w, err := conf.Window(); err == nil && !w.NoWindow {
		log.Printf("capture %s", w)
	}
}
