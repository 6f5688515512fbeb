// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_FirstTriggerRendersImmediately(t *testing.T) {
	var calls atomic.Int32
	th := NewThrottle(time.Hour, func() { calls.Add(1) })

	th.Trigger()
	assert.Equal(t, int32(1), calls.Load())
}

func TestThrottle_CoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	th := NewThrottle(50*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 100; i++ {
		th.Trigger()
	}
	assert.Equal(t, int32(1), calls.Load(), "burst inside one interval renders once up front")

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond,
		"one trailing render for the rest of the burst")
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestThrottle_StopFlushesPending(t *testing.T) {
	var calls atomic.Int32
	th := NewThrottle(time.Hour, func() { calls.Add(1) })

	th.Trigger()
	th.Trigger()
	assert.Equal(t, int32(1), calls.Load())

	th.Stop()
	assert.Equal(t, int32(2), calls.Load(), "pending render flushed on stop")

	th.Trigger()
	th.Stop()
	assert.Equal(t, int32(2), calls.Load(), "stopped throttle ignores triggers")
}

func TestThrottle_StopWithoutPendingDoesNotRender(t *testing.T) {
	var calls atomic.Int32
	th := NewThrottle(time.Hour, func() { calls.Add(1) })

	th.Trigger()
	th.Stop()
	assert.Equal(t, int32(1), calls.Load())
}

func TestFollower(t *testing.T) {
	var f Follower
	assert.True(t, f.Following())

	f.UserScrolled()
	assert.False(t, f.Following())
	f.UserScrolled()
	assert.False(t, f.Following(), "flag is sticky")

	f.Reset()
	assert.True(t, f.Following())
}
