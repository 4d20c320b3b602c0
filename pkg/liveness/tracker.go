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

// Package liveness converts raw probe outcomes into debounced reachability
// state. A device is declared down only after N consecutive misses; a single
// success declares it up again. Only genuine transitions produce events.
package liveness

import (
	"sync"

	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
)

// ThresholdSource supplies the live miss threshold. It is consulted on every
// probe result so configuration changes apply without a restart.
type ThresholdSource interface {
	MaxMissedProbes() int
}

// Tracker owns the per-device miss counters. Reachability is always derived
// from (misses, threshold), never stored, so the two cannot drift apart.
type Tracker struct {
	thresholds ThresholdSource
	logger     logger.Logger

	mu     sync.Mutex
	misses map[int64]int
}

func NewTracker(thresholds ThresholdSource, log logger.Logger) *Tracker {
	return &Tracker{
		thresholds: thresholds,
		logger:     log,
		misses:     make(map[int64]int),
	}
}

// Record folds one probe outcome into the device's counter and reports
// whether the derived state crossed UP or DOWN. A device with no prior
// observation has unknown previous state: it never emits UP, and emits DOWN
// only once its counter reaches the threshold.
func (t *Tracker) Record(deviceID int64, success bool) (models.TransitionEvent, bool) {
	threshold := t.thresholds.MaxMissedProbes()

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.misses[deviceID]

	misses := 0
	if !success {
		misses = prev + 1
	}

	t.misses[deviceID] = misses

	isReachable := misses < threshold

	if !seen {
		if !isReachable {
			return t.transition(deviceID, models.DirectionDown, misses), true
		}

		return models.TransitionEvent{}, false
	}

	wasReachable := prev < threshold

	switch {
	case wasReachable && !isReachable:
		return t.transition(deviceID, models.DirectionDown, misses), true
	case !wasReachable && isReachable:
		return t.transition(deviceID, models.DirectionUp, misses), true
	default:
		return models.TransitionEvent{}, false
	}
}

func (t *Tracker) transition(deviceID int64, direction models.Direction, misses int) models.TransitionEvent {
	t.logger.Info().
		Int64("device_id", deviceID).
		Str("direction", string(direction)).
		Int("misses", misses).
		Msg("Reachability transition")

	return models.TransitionEvent{DeviceID: deviceID, Direction: direction}
}

// IsReachable derives the device's current state. Devices never observed
// count as reachable for display purposes, matching a zero-miss record.
func (t *Tracker) IsReachable(deviceID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.misses[deviceID] < t.thresholds.MaxMissedProbes()
}

// Misses returns the device's consecutive miss count.
func (t *Tracker) Misses(deviceID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.misses[deviceID]
}

// Forget drops a device's state so a later re-add starts unknown.
func (t *Tracker) Forget(deviceID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.misses, deviceID)
}

// Prune drops state for every device not in keep. Called after a registry
// resync replaces the device list.
func (t *Tracker) Prune(keep map[int64]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.misses {
		if _, ok := keep[id]; !ok {
			delete(t.misses, id)
		}
	}
}
