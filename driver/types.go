// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package driver

import (
	"fmt"
	"strings"
)

// Channel is a 0-based frame store index.
type Channel uint32

const (
	Channel1 Channel = iota
	Channel2
	Channel3
	Channel4
	Channel5
	Channel6
	Channel7
	Channel8

	MaxChannels = 8
)

// Valid reports whether ch is a legal channel number.
func (ch Channel) Valid() bool {
	return ch < MaxChannels
}

func (ch Channel) String() string {
	return fmt.Sprintf("Ch%d", uint32(ch)+1)
}

// Crosspoint names one direction of a channel as seen by the driver.
// Output crosspoints carry the historical "channel" name.
type Crosspoint uint32

const (
	CrosspointChannel1 Crosspoint = iota
	CrosspointInput1
	CrosspointInput2
	CrosspointMatte
	CrosspointFGKey
	CrosspointChannel2
	CrosspointInput3
	CrosspointInput4
	CrosspointChannel3
	CrosspointChannel4
	CrosspointInput5
	CrosspointInput6
	CrosspointInput7
	CrosspointInput8
	CrosspointChannel5
	CrosspointChannel6
	CrosspointChannel7
	CrosspointChannel8
	CrosspointInvalid
)

var (
	inputCrosspoints = [MaxChannels]Crosspoint{
		CrosspointInput1, CrosspointInput2, CrosspointInput3, CrosspointInput4,
		CrosspointInput5, CrosspointInput6, CrosspointInput7, CrosspointInput8,
	}
	outputCrosspoints = [MaxChannels]Crosspoint{
		CrosspointChannel1, CrosspointChannel2, CrosspointChannel3, CrosspointChannel4,
		CrosspointChannel5, CrosspointChannel6, CrosspointChannel7, CrosspointChannel8,
	}
)

// InputCrosspoint returns the capture crosspoint of ch.
func InputCrosspoint(ch Channel) Crosspoint {
	if !ch.Valid() {
		return CrosspointInvalid
	}
	return inputCrosspoints[ch]
}

// OutputCrosspoint returns the playout crosspoint of ch.
func OutputCrosspoint(ch Channel) Crosspoint {
	if !ch.Valid() {
		return CrosspointInvalid
	}
	return outputCrosspoints[ch]
}

// AllCrosspoints returns every AutoCirculate crosspoint, outputs then
// inputs, in channel order.
func AllCrosspoints() []Crosspoint {
	out := make([]Crosspoint, 0, 2*MaxChannels)
	out = append(out, outputCrosspoints[:]...)
	return append(out, inputCrosspoints[:]...)
}

// IsInput reports whether x is a capture crosspoint.
func (x Crosspoint) IsInput() bool {
	_, ok := indexOf(x, inputCrosspoints)
	return ok
}

// IsOutput reports whether x is a playout crosspoint.
func (x Crosspoint) IsOutput() bool {
	_, ok := indexOf(x, outputCrosspoints)
	return ok
}

// Valid reports whether x can be AutoCirculated.
func (x Crosspoint) Valid() bool {
	return x.IsInput() || x.IsOutput()
}

// Channel returns the channel that x belongs to.
func (x Crosspoint) Channel() Channel {
	if n, ok := indexOf(x, inputCrosspoints); ok {
		return Channel(n)
	}
	if n, ok := indexOf(x, outputCrosspoints); ok {
		return Channel(n)
	}
	return MaxChannels
}

func indexOf(x Crosspoint, set [MaxChannels]Crosspoint) (int, bool) {
	for n, v := range set {
		if v == x {
			return n, true
		}
	}
	return 0, false
}

func (x Crosspoint) String() string {
	switch {
	case x.IsInput():
		return "Input " + x.Channel().String()
	case x.IsOutput():
		return "Output " + x.Channel().String()
	case x == CrosspointMatte:
		return "Matte"
	case x == CrosspointFGKey:
		return "FGKey"
	}
	return "Invalid"
}

// Mode is the direction a channel's frame store is configured for.
type Mode uint32

const (
	ModeDisplay Mode = iota
	ModeCapture
)

func (m Mode) String() string {
	if m == ModeCapture {
		return "capture"
	}
	return "display"
}

// State is the AutoCirculate state of one crosspoint.
type State uint32

const (
	StateDisabled State = iota
	StateInitializing
	StateStarting
	StatePaused
	StateStopping
	StateRunning
	StateStartingAtTime
	StateInvalid
)

var stateNames = [...]string{
	"Disabled", "Initializing", "Starting", "Paused",
	"Stopping", "Running", "StartingAtTime", "Invalid",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// Command selects the operation of a legacy AutoCirculate call.
type Command uint32

const (
	CmdInit Command = iota
	CmdStart
	CmdStop
	CmdPause
	CmdGetStatus
	CmdGetFrameStamp
	CmdFlush
	CmdPreroll
	CmdTransfer
	CmdAbort
	CmdStartAtTime
	CmdTransferEx
	CmdTransferEx2
	CmdGetFrameStampEx2
	CmdTask
	CmdSetActiveFrame
)

var commandNames = [...]string{
	"ACInit", "ACStart", "ACStop", "ACPause", "GetAC", "ACFrmStmp",
	"ACFlush", "ACPreRoll", "ACXfer", "ACAbort", "ACStartAt",
	"ACXfer1", "ACXfer2", "ACFrmStmp2", "ACTask", "ACSetActFrm",
}

func (c Command) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}
	return fmt.Sprintf("Command(%d)", uint32(c))
}

// Options is the bit set of AutoCirculate init options.
type Options uint32

const (
	WithRP188 Options = 1 << iota
	WithLTC
	WithFBFChange
	WithFBOChange
	WithColorCorrect
	WithVidProc
	WithAnc
	WithAudioControl
	WithFields
	WithHDMIAux
	WithMultiLinkAudio1
	WithMultiLinkAudio2
	WithMultiLinkAudio3
)

var optionNames = []struct {
	opt  Options
	name string
}{
	{WithRP188, "RP188"},
	{WithLTC, "LTC"},
	{WithFBFChange, "FBFChange"},
	{WithFBOChange, "FBOChange"},
	{WithColorCorrect, "ColorCorrect"},
	{WithVidProc, "VidProc"},
	{WithAnc, "Anc"},
	{WithAudioControl, "AudioControl"},
	{WithFields, "Fields"},
	{WithHDMIAux, "HDMIAux"},
	{WithMultiLinkAudio1, "MultiLinkAudio1"},
	{WithMultiLinkAudio2, "MultiLinkAudio2"},
	{WithMultiLinkAudio3, "MultiLinkAudio3"},
}

// Has reports whether every bit of opt is set.
func (o Options) Has(opt Options) bool {
	return o&opt == opt
}

func (o Options) String() string {
	var names []string
	for _, n := range optionNames {
		if o.Has(n.opt) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// AudioSystem is a 0-based audio engine index.
type AudioSystem uint32

const (
	AudioSystem1 AudioSystem = iota
	AudioSystem2
	AudioSystem3
	AudioSystem4
	AudioSystem5
	AudioSystem6
	AudioSystem7
	AudioSystem8

	// AudioSystemInvalid requests no audio.
	AudioSystemInvalid AudioSystem = 8

	// Multi-link audio flags are OR'd above the audio system number.
	AudioSystemPlus1 AudioSystem = 0x100
	AudioSystemPlus2 AudioSystem = 0x200
	AudioSystemPlus3 AudioSystem = 0x400

	audioSystemMask = 0xF
)

// Valid reports whether a names a real audio engine.
func (a AudioSystem) Valid() bool {
	return a&audioSystemMask < AudioSystemInvalid
}

// Base strips the multi-link flags.
func (a AudioSystem) Base() AudioSystem {
	return a & audioSystemMask
}

func (a AudioSystem) String() string {
	if !a.Valid() {
		return "NoAudio"
	}
	return fmt.Sprintf("AudSys%d", uint32(a.Base())+1)
}

// Interrupt identifies a device interrupt source.
type Interrupt uint32

const (
	interruptOutputBase Interrupt = 0
	interruptInputBase  Interrupt = 0x100
)

// OutputVertical is the output vertical blanking interrupt of ch.
func OutputVertical(ch Channel) Interrupt {
	return interruptOutputBase + Interrupt(ch)
}

// InputVertical is the input vertical blanking interrupt of ch.
func InputVertical(ch Channel) Interrupt {
	return interruptInputBase + Interrupt(ch)
}

// VerticalFor returns the vertical interrupt matching the crosspoint's
// direction.
func VerticalFor(x Crosspoint) Interrupt {
	if x.IsInput() {
		return InputVertical(x.Channel())
	}
	return OutputVertical(x.Channel())
}

func (i Interrupt) String() string {
	if i >= interruptInputBase {
		return fmt.Sprintf("InputVertical%d", uint32(i-interruptInputBase)+1)
	}
	return fmt.Sprintf("OutputVertical%d", uint32(i)+1)
}

// TaskMode is the driver's every-frame task level.
type TaskMode uint32

const (
	TaskModeDisabled TaskMode = iota
	TaskModeStandard
	TaskModeOEM
)

// InputSelect chooses which SDI input feeds the classic timecode
// registers.
type InputSelect uint32

const (
	InputSelect1 InputSelect = iota
	InputSelect2
)

// RP188Source chooses the timecode source for the classic registers.
type RP188Source uint32

const (
	RP188SourceEmbeddedLTC RP188Source = iota
	RP188SourceVITC1
	RP188SourceVITC2
	RP188SourceLTCPort
)
