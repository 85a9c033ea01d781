// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameLoopWraps(t *testing.T) {
	fl := newFrameLoop(4, 7)
	assert.True(t, fl.empty())

	assert.Equal(t, int32(4), fl.push())
	assert.Equal(t, int32(5), fl.push())
	assert.Equal(t, int32(6), fl.push())
	assert.True(t, fl.full())

	assert.Equal(t, int32(4), fl.pop())
	assert.Equal(t, int32(7), fl.push())
	assert.Equal(t, int32(5), fl.pop())
	assert.Equal(t, int32(4), fl.push())
	assert.Equal(t, int32(6), fl.oldest())
}

func TestFrameLoopFlushAndPreroll(t *testing.T) {
	fl := newFrameLoop(0, 4)
	fl.push()
	fl.push()
	fl.flush()
	assert.True(t, fl.empty())
	assert.Equal(t, int32(2), fl.oldest())

	fl.preroll(10)
	assert.True(t, fl.full())
	assert.Equal(t, int32(4), fl.level)
}

func TestFrameLoopContains(t *testing.T) {
	fl := newFrameLoop(7, 13)
	assert.False(t, fl.contains(6))
	assert.True(t, fl.contains(7))
	assert.True(t, fl.contains(13))
	assert.False(t, fl.contains(14))
}
