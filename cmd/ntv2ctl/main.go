// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	arg "github.com/alexflint/go-arg"
	"github.com/fatih/color"

	"github.com/TheCacophonyProject/autocirculate/ntv2client"
)

var version = "<not set>"

type StartCmd struct {
	Channel int `arg:"positional,required" help:"channel number (1-8)"`
}

type StopCmd struct {
	Channel int  `arg:"positional,required" help:"channel number (1-8)"`
	Abort   bool `arg:"-a,--abort" help:"abort instead of waiting for an orderly stop"`
}

type StatusCmd struct {
	Channel int `arg:"positional" help:"channel number (1-8), all channels if omitted"`
}

type Args struct {
	Start  *StartCmd  `arg:"subcommand:start" help:"start capturing on a channel"`
	Stop   *StopCmd   `arg:"subcommand:stop" help:"stop a channel"`
	Status *StatusCmd `arg:"subcommand:status" help:"show channel status"`
}

func (Args) Version() string {
	return version
}

func main() {
	log.SetFlags(0)
	var args Args
	p := arg.MustParse(&args)
	if err := run(args); err != nil {
		if err == errNoCommand {
			p.WriteHelp(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

var errNoCommand = errors.New("no command given")

func run(args Args) error {
	switch {
	case args.Start != nil:
		return ntv2client.Start(args.Start.Channel)
	case args.Stop != nil:
		return ntv2client.Stop(args.Stop.Channel, args.Stop.Abort)
	case args.Status != nil:
		var statuses []ntv2client.ChannelStatus
		if args.Status.Channel > 0 {
			st, err := ntv2client.Status(args.Status.Channel)
			if err != nil {
				return err
			}
			statuses = append(statuses, st)
		} else {
			var err error
			if statuses, err = ntv2client.Channels(); err != nil {
				return err
			}
		}
		for _, st := range statuses {
			printStatus(os.Stdout, st)
		}
		return nil
	}
	return errNoCommand
}

func printStatus(w io.Writer, st ntv2client.ChannelStatus) {
	state := color.New(color.FgYellow)
	switch {
	case st.Running():
		state = color.New(color.FgGreen)
	case st.State == "Disabled":
		state = color.New(color.FgRed)
	}
	bold := color.New(color.Bold)

	bold.Fprintf(w, "Ch%d", st.Channel)
	fmt.Fprintf(w, " %s: ", st.Crosspoint)
	state.Fprintln(w, st.State)
	if st.State == "Disabled" {
		return
	}
	fmt.Fprintf(w, "  frames     %d-%d (active %d)\n", st.StartFrame, st.EndFrame, st.ActiveFrame)
	fmt.Fprintf(w, "  buffered   %d\n", st.BufferLevel)
	fmt.Fprintf(w, "  processed  %d\n", st.Processed)
	dropped := color.New(color.Reset)
	if st.Dropped > 0 {
		dropped = color.New(color.FgRed)
	}
	fmt.Fprint(w, "  dropped    ")
	dropped.Fprintln(w, st.Dropped)
	if st.Streaming {
		fmt.Fprintln(w, "  streaming")
	} else {
		fmt.Fprintln(w, "  no frame reader")
	}
}
