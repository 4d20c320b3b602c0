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

// Package scheduler drives the probing cadences: a steady interval over the
// whole registry, an immediate kick on registry change, and on-demand single
// or broadcast probes. Visible probes are diagnostics only and bypass the
// liveness tracker.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
	"github.com/shoham-z/netmon/pkg/probe"
)

// DeviceSource supplies the current device set. Probe results are resolved
// by address against the then-current list, so results for an address that
// changed mid-flight are dropped.
type DeviceSource interface {
	Devices() []models.Device
	DeviceByAddress(address string) (models.Device, error)
}

// Tracker folds probe outcomes into reachability state.
type Tracker interface {
	Record(deviceID int64, success bool) (models.TransitionEvent, bool)
}

// TransitionHandler consumes the tracker's transition events.
type TransitionHandler interface {
	OnTransition(ctx context.Context, event models.TransitionEvent)
}

// Scheduler runs the probe loop.
type Scheduler struct {
	devices  DeviceSource
	prober   probe.Prober
	tracker  Tracker
	handler  TransitionHandler
	interval time.Duration
	clock    Clock
	logger   logger.Logger

	kick      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(devices DeviceSource, prober probe.Prober, tracker Tracker, handler TransitionHandler,
	interval time.Duration, clock Clock, log logger.Logger) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}

	return &Scheduler{
		devices:  devices,
		prober:   prober,
		tracker:  tracker,
		handler:  handler,
		interval: interval,
		clock:    clock,
		logger:   log,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start runs the steady probe loop until the context is canceled or Stop is
// called. An initial pass fires immediately so startup does not wait a full
// interval.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("Starting probe scheduler")

	s.probePass(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-s.kick:
			s.probePass(ctx)
		case <-ticker.Chan():
			s.probePass(ctx)
		}
	}
}

// Kick requests an immediate probe pass. Multiple kicks between passes
// coalesce into one.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// ProbeNow probes a single device outside the schedule and returns the raw
// outcome. Non-visible results feed the liveness tracker like any scheduled
// probe.
func (s *Scheduler) ProbeNow(ctx context.Context, address string, visible bool) bool {
	success := s.prober.Probe(ctx, address)
	s.handleResult(ctx, address, success, visible)

	return success
}

// ProbeAll fans out a probe to every registered device. A visible broadcast
// is for human-observed diagnostics and never updates the tracker.
func (s *Scheduler) ProbeAll(ctx context.Context, visible bool) {
	for _, device := range s.devices.Devices() {
		s.dispatch(ctx, device.Address, visible)
	}
}

// Stop clears the steady-interval loop. In-flight probes complete but their
// results are discarded.
func (s *Scheduler) Stop() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// probePass dispatches one probe per registered device. Probes run
// independently so a hung device never delays probing the next one.
func (s *Scheduler) probePass(ctx context.Context) {
	devices := s.devices.Devices()

	s.logger.Debug().Int("devices", len(devices)).Msg("Probe pass")

	for _, device := range devices {
		s.dispatch(ctx, device.Address, false)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, address string, visible bool) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		success := s.prober.Probe(ctx, address)
		s.handleResult(ctx, address, success, visible)
	}()
}

func (s *Scheduler) handleResult(ctx context.Context, address string, success, visible bool) {
	if s.stopped() {
		return
	}

	if visible {
		s.logger.Info().
			Str("address", address).
			Bool("success", success).
			Msg("Visible probe result")

		return
	}

	device, err := s.devices.DeviceByAddress(address)
	if err != nil {
		// Device removed or re-addressed while the probe was in flight.
		s.logger.Debug().Str("address", address).Msg("Dropping probe result for unknown address")
		return
	}

	event, ok := s.tracker.Record(device.ID, success)
	if !ok {
		return
	}

	s.handler.OnTransition(ctx, event)
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
