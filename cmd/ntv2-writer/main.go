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
	"log"
	"net"
	"os"

	arg "github.com/alexflint/go-arg"
)

var version = "<not set>"

type Args struct {
	FrameInput string `arg:"-i,--input" help:"frame socket to listen on"`
	OutputDir  string `arg:"-o,--output-dir" help:"directory to write raw files to"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{
		FrameInput: "/var/run/ntv2-frames",
		OutputDir:  "/var/spool/ntv2-raw",
	}
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

	log.Printf("running version: %s", version)
	log.Printf("frame input: %s", args.FrameInput)
	log.Printf("output dir: %s", args.OutputDir)

	for {
		// Set up listener for frames sent by ntv2d.
		os.Remove(args.FrameInput)
		listener, err := net.Listen("unix", args.FrameInput)
		if err != nil {
			return err
		}
		log.Print("waiting for ntv2d connection")

		conn, err := listener.Accept()
		if err != nil {
			log.Printf("socket accept failed: %v", err)
			listener.Close()
			continue
		}

		// Prevent concurrent connections.
		listener.Close()

		err = handleConn(conn, args.OutputDir)
		conn.Close()
		log.Printf("ntv2d connection ended with: %v", err)
	}
}
