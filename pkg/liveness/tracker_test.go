/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
)

type fixedThreshold int

func (f fixedThreshold) MaxMissedProbes() int { return int(f) }

type adjustableThreshold struct{ n int }

func (a *adjustableThreshold) MaxMissedProbes() int { return a.n }

func newTestTracker(threshold int) *Tracker {
	return NewTracker(fixedThreshold(threshold), logger.NewTestLogger())
}

func TestMissCounter(t *testing.T) {
	tr := newTestTracker(5)

	for k := 1; k <= 4; k++ {
		_, emitted := tr.Record(1, false)
		assert.False(t, emitted)
		assert.Equal(t, k, tr.Misses(1), "counter after %d misses", k)
	}

	_, emitted := tr.Record(1, true)
	assert.False(t, emitted)
	assert.Equal(t, 0, tr.Misses(1), "success resets the counter")
}

func TestDownFiresExactlyOnceAtThreshold(t *testing.T) {
	tr := newTestTracker(3)

	var events []models.TransitionEvent

	for i := 0; i < 6; i++ {
		if ev, ok := tr.Record(1, false); ok {
			events = append(events, ev)
		}
	}

	require.Len(t, events, 1, "exactly one DOWN while the counter stays at or above threshold")
	assert.Equal(t, models.TransitionEvent{DeviceID: 1, Direction: models.DirectionDown}, events[0])
	assert.Equal(t, 6, tr.Misses(1))
	assert.False(t, tr.IsReachable(1))
}

func TestUpFiresOnceOnRecovery(t *testing.T) {
	tr := newTestTracker(3)

	for i := 0; i < 3; i++ {
		tr.Record(1, false)
	}

	ev, ok := tr.Record(1, true)
	require.True(t, ok)
	assert.Equal(t, models.DirectionUp, ev.Direction)
	assert.True(t, tr.IsReachable(1))

	_, ok = tr.Record(1, true)
	assert.False(t, ok, "further successes emit nothing")
}

// A device whose very first probe fails reports DOWN only after the full
// miss threshold, not immediately.
func TestFirstObservationWaitsForThreshold(t *testing.T) {
	tr := newTestTracker(3)

	_, ok := tr.Record(1, false)
	assert.False(t, ok, "first miss of a never-seen device is not an event")

	_, ok = tr.Record(1, false)
	assert.False(t, ok)

	ev, ok := tr.Record(1, false)
	require.True(t, ok)
	assert.Equal(t, models.DirectionDown, ev.Direction)
}

func TestFirstObservationSuccessIsSilent(t *testing.T) {
	tr := newTestTracker(3)

	_, ok := tr.Record(1, true)
	assert.False(t, ok, "unknown to reachable is not a transition")
}

func TestFlappingBelowThresholdIsAbsorbed(t *testing.T) {
	tr := newTestTracker(3)

	sequence := []bool{false, false, true, false, true, false, false, true}
	for _, success := range sequence {
		_, ok := tr.Record(1, success)
		assert.False(t, ok, "transient packet loss below threshold must not flap")
	}
}

func TestThresholdReadLivePerCall(t *testing.T) {
	th := &adjustableThreshold{n: 5}
	tr := NewTracker(th, logger.NewTestLogger())

	tr.Record(1, false)
	tr.Record(1, false)

	// Tightening the threshold takes effect on the very next probe.
	th.n = 3

	ev, ok := tr.Record(1, false)
	require.True(t, ok)
	assert.Equal(t, models.DirectionDown, ev.Direction)
}

func TestDevicesAreIndependent(t *testing.T) {
	tr := newTestTracker(2)

	tr.Record(1, false)
	tr.Record(2, true)

	ev, ok := tr.Record(1, false)
	require.True(t, ok)
	assert.Equal(t, int64(1), ev.DeviceID)

	assert.True(t, tr.IsReachable(2))
	assert.Equal(t, 0, tr.Misses(2))
}

func TestForgetResetsToUnknown(t *testing.T) {
	tr := newTestTracker(2)

	tr.Record(1, false)
	tr.Record(1, false)
	tr.Forget(1)

	_, ok := tr.Record(1, false)
	assert.False(t, ok, "a forgotten device starts over from unknown")
	assert.Equal(t, 1, tr.Misses(1))
}

func TestPruneKeepsListedDevices(t *testing.T) {
	tr := newTestTracker(2)

	tr.Record(1, false)
	tr.Record(2, false)

	tr.Prune(map[int64]struct{}{2: {}})

	assert.Equal(t, 0, tr.Misses(1), "pruned device state is gone")
	assert.Equal(t, 1, tr.Misses(2))
}

func TestScenarioCoreSwitch(t *testing.T) {
	// threshold=3, device D: fail, fail, fail -> one DOWN; success -> one UP.
	tr := newTestTracker(3)

	var events []models.TransitionEvent

	for _, success := range []bool{false, false, false, true} {
		if ev, ok := tr.Record(7, success); ok {
			events = append(events, ev)
		}
	}

	require.Len(t, events, 2)
	assert.Equal(t, models.DirectionDown, events[0].Direction)
	assert.Equal(t, models.DirectionUp, events[1].Direction)
}
