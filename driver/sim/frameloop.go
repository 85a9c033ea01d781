// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package sim

func newFrameLoop(start, end int32) *frameLoop {
	return &frameLoop{
		start: start,
		size:  end - start + 1,
	}
}

// frameLoop tracks which device frames of a channel's range hold
// frames waiting to be transferred (capture) or played (playout).
// One frame of the range always belongs to the hardware, so at most
// size-1 frames can be queued.
type frameLoop struct {
	start        int32
	size         int32
	currentIndex int32
	level        int32
}

func (fl *frameLoop) nextFrameFrom(index int32) int32 {
	return (index + 1) % fl.size
}

func (fl *frameLoop) full() bool {
	return fl.level >= fl.size-1
}

func (fl *frameLoop) empty() bool {
	return fl.level == 0
}

// push queues the next free frame and returns its device frame number.
func (fl *frameLoop) push() int32 {
	index := (fl.currentIndex + fl.level) % fl.size
	fl.level++
	return fl.start + index
}

// pop dequeues the oldest frame and returns its device frame number.
func (fl *frameLoop) pop() int32 {
	frame := fl.oldest()
	fl.currentIndex = fl.nextFrameFrom(fl.currentIndex)
	fl.level--
	return frame
}

// oldest returns the device frame number of the oldest queued frame.
func (fl *frameLoop) oldest() int32 {
	return fl.start + fl.currentIndex
}

// preroll marks up to n extra frames as queued.
func (fl *frameLoop) preroll(n int32) {
	for ; n > 0 && !fl.full(); n-- {
		fl.push()
	}
}

func (fl *frameLoop) flush() {
	fl.currentIndex = (fl.currentIndex + fl.level) % fl.size
	fl.level = 0
}

func (fl *frameLoop) contains(frame int32) bool {
	return frame >= fl.start && frame < fl.start+fl.size
}
